// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"strings"

	"github.com/sigil-dev/wren/internal/store"
)

const (
	DefaultUserLabel  = "User"
	DefaultAgentLabel = "Eve"
	DefaultMaxChars   = 16000
)

// ContextBuilder renders conversation history into the plain-text prompt the
// reply generator consumes. It is pure: identical input always yields
// identical output.
type ContextBuilder struct {
	UserLabel  string
	AgentLabel string
	// MaxChars bounds the rendered context. When the full history does not
	// fit, the oldest lines are dropped first. The system prompt and the new
	// user utterance are always kept. Zero means DefaultMaxChars, negative
	// disables the bound.
	MaxChars int
}

// NewContextBuilder returns a builder with the default labels and budget.
func NewContextBuilder() ContextBuilder {
	return ContextBuilder{
		UserLabel:  DefaultUserLabel,
		AgentLabel: DefaultAgentLabel,
		MaxChars:   DefaultMaxChars,
	}
}

// Build renders a session turn context:
//
//	System prompt: {prompt}
//	User: ...
//	Eve: ...
//	User: {userText}
//	Eve:
func (b ContextBuilder) Build(systemPrompt string, history []*store.Message, userText string) string {
	head := "System prompt: " + systemPrompt
	tail := []string{
		b.userLabel() + ": " + userText,
		b.agentLabel() + ":",
	}
	return b.render([]string{head}, b.lines(history), tail)
}

// JournalContext renders the one-shot journal reply context: the journal text
// followed by the agent's earlier replies to it.
func (b ContextBuilder) JournalContext(content string, priorReplies []*store.Message) string {
	head := "Journal: " + content
	tail := []string{b.agentLabel() + ":"}
	return b.render([]string{head}, b.lines(priorReplies), tail)
}

// Transcript flattens every message in chronological order, one per line.
// It is not bounded; summarization sees the whole conversation.
func (b ContextBuilder) Transcript(history []*store.Message) string {
	return strings.Join(b.lines(history), "\n")
}

func (b ContextBuilder) lines(history []*store.Message) []string {
	out := make([]string, 0, len(history))
	for _, m := range history {
		if m == nil {
			continue
		}
		out = append(out, b.label(m.Role)+": "+m.Text)
	}
	return out
}

// render joins head, body and tail, dropping body lines from the front until
// the result fits the budget.
func (b ContextBuilder) render(head, body, tail []string) string {
	limit := b.maxChars()
	if limit > 0 {
		fixed := joinedLen(head) + joinedLen(tail) + 1
		size := joinedLen(body)
		for len(body) > 0 && fixed+size+1 > limit {
			size -= len(body[0]) + 1
			body = body[1:]
		}
	}

	parts := make([]string, 0, len(head)+len(body)+len(tail))
	parts = append(parts, head...)
	parts = append(parts, body...)
	parts = append(parts, tail...)
	return strings.Join(parts, "\n")
}

func (b ContextBuilder) label(role store.MessageRole) string {
	if role == store.MessageRoleAgent {
		return b.agentLabel()
	}
	return b.userLabel()
}

func (b ContextBuilder) userLabel() string {
	if b.UserLabel == "" {
		return DefaultUserLabel
	}
	return b.UserLabel
}

func (b ContextBuilder) agentLabel() string {
	if b.AgentLabel == "" {
		return DefaultAgentLabel
	}
	return b.AgentLabel
}

func (b ContextBuilder) maxChars() int {
	if b.MaxChars == 0 {
		return DefaultMaxChars
	}
	return b.MaxChars
}

// joinedLen is the length of lines joined with "\n".
func joinedLen(lines []string) int {
	if len(lines) == 0 {
		return 0
	}
	n := len(lines) - 1
	for _, l := range lines {
		n += len(l)
	}
	return n
}
