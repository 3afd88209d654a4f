// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package provider is the text generation layer behind Eve's replies,
// session summaries and notes. Each backend adapts one vendor SDK to a
// streaming chat contract, and the Registry picks a backend per purpose.
package provider

import "context"

// Provider is a chat-capable model backend.
type Provider interface {
	Name() string
	// Available reports whether the router may send work here right now.
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	// Chat starts a streamed completion. The returned channel is closed
	// after a Done or Error event, or early when ctx is cancelled.
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// HealthReporter is implemented by providers that keep a HealthTracker.
// Callers report chat failures so routing backs off the provider.
type HealthReporter interface {
	RecordFailure()
	RecordSuccess()
	HealthMetrics() HealthMetrics
}

// ChatRequest is one completion call. Wren sends the rendered conversation
// as a single user message, so most requests carry one Message.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Options      ChatOptions
}

// ChatOptions tune sampling. Zero values leave the vendor default.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
}

type Message struct {
	Role    MessageRole
	Content string
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ChatEvent is one item of a completion stream.
type ChatEvent struct {
	Type  EventType
	Text  string // EventTypeTextDelta
	Usage *Usage // EventTypeUsage
	Error string // EventTypeError
}

type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage is the token accounting reported by a stream.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// merge folds a later usage report into u. Vendors report running totals,
// so non-zero fields replace earlier values.
func (u *Usage) merge(next *Usage) {
	if next == nil {
		return
	}
	if next.InputTokens > 0 {
		u.InputTokens = next.InputTokens
	}
	if next.OutputTokens > 0 {
		u.OutputTokens = next.OutputTokens
	}
	if next.CacheReadTokens > 0 {
		u.CacheReadTokens = next.CacheReadTokens
	}
	if next.CacheWriteTokens > 0 {
		u.CacheWriteTokens = next.CacheWriteTokens
	}
}

// ModelInfo is a catalog entry. See Model for building one.
type ModelInfo struct {
	ID           string
	Name         string
	Provider     string
	Capabilities ModelCapabilities
}

type ModelCapabilities struct {
	SupportsAudioInput bool
	SupportsStreaming  bool
	SupportsThinking   bool
	MaxContextTokens   int
	MaxOutputTokens    int
}

// ProviderStatus is the operator-facing view of a provider.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
}
