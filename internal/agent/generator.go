// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sigil-dev/wren/internal/provider"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Mode selects what the generator is asked to produce.
type Mode string

const (
	ModeReply     Mode = "reply"
	ModeSummarize Mode = "summarize"
	ModeNotes     Mode = "notes"
)

// NotesCount is the number of bullet points requested in notes mode.
const NotesCount = 5

const (
	defaultReplySystemPrompt = "You are Eve, a supportive therapist-like companion. Reply with empathy in a few spoken sentences."
	summarizePrompt          = "Summarize the following therapy-like conversation into clear notes:\n\n"
	notesPromptFormat        = "From the following conversation, write exactly %d short actionable notes for the user, one per line, each starting with \"- \":\n\n"
)

// GenerateRequest is a single generation call.
type GenerateRequest struct {
	// Context is the rendered conversation (reply) or flattened transcript
	// (summarize, notes).
	Context      string
	Mode         Mode
	SystemPrompt string
}

// ReplyGenerator produces text from a rendered context.
type ReplyGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ProviderGenerator implements ReplyGenerator over the provider registry. The
// mode doubles as the routing purpose, so summarize and notes can be pointed
// at a cheaper model than live replies. When a provider fails mid-stream the
// next candidate of the failover chain is tried.
type ProviderGenerator struct {
	router      *provider.Registry
	maxTokens   int
	temperature *float32
}

// ProviderGeneratorConfig holds ProviderGenerator settings.
type ProviderGeneratorConfig struct {
	MaxTokens   int
	Temperature *float32
}

// NewProviderGenerator returns a generator routing through router.
func NewProviderGenerator(router *provider.Registry, cfg ProviderGeneratorConfig) *ProviderGenerator {
	return &ProviderGenerator{
		router:      router,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (g *ProviderGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	chatReq := buildChatRequest(req)
	chatReq.Options.MaxTokens = g.maxTokens
	chatReq.Options.Temperature = g.temperature

	var tried []string
	var lastErr error
	for attempt := 0; attempt < g.router.MaxAttempts(); attempt++ {
		prov, model, err := g.router.RouteExcluding(ctx, string(req.Mode), "", tried)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		tried = append(tried, prov.Name())

		chatReq.Model = model
		text, err := g.chat(ctx, prov, chatReq)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("generation attempt failed",
			"provider", prov.Name(),
			"model", model,
			"mode", string(req.Mode),
			"error", err)
	}

	return "", lastErr
}

func (g *ProviderGenerator) chat(ctx context.Context, prov provider.Provider, req provider.ChatRequest) (string, error) {
	events, err := prov.Chat(ctx, req)
	if err != nil {
		recordFailure(prov)
		return "", wrenerr.Wrapf(err, wrenerr.CodeProviderUpstreamFailure, "chat call to %s", prov.Name())
	}

	text, usage, err := provider.Collect(ctx, prov.Name(), events)
	if err != nil {
		if ctx.Err() == nil {
			recordFailure(prov)
		}
		return "", err
	}
	slog.Debug("generation complete",
		"provider", prov.Name(),
		"model", req.Model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens)
	return text, nil
}

// recordFailure marks prov unhealthy when it tracks its own health, so the
// router skips it until the cooldown passes.
func recordFailure(prov provider.Provider) {
	if hr, ok := prov.(provider.HealthReporter); ok {
		hr.RecordFailure()
	}
}

func buildChatRequest(req GenerateRequest) provider.ChatRequest {
	switch req.Mode {
	case ModeSummarize:
		return provider.ChatRequest{
			Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: summarizePrompt + req.Context}},
		}
	case ModeNotes:
		return provider.ChatRequest{
			Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: fmt.Sprintf(notesPromptFormat, NotesCount) + req.Context}},
		}
	default:
		system := req.SystemPrompt
		if system == "" {
			system = defaultReplySystemPrompt
		}
		return provider.ChatRequest{
			SystemPrompt: system,
			Messages:     []provider.Message{{Role: provider.MessageRoleUser, Content: req.Context}},
		}
	}
}

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)

// NormalizeNotes turns raw notes output into at most n bullet lines of the
// form "- text". Blank lines are skipped and common list markers stripped.
func NormalizeNotes(raw string, n int) []string {
	var notes []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		notes = append(notes, line)
		if len(notes) == n {
			break
		}
	}
	return notes
}

// FormatNotes renders normalized notes as a bullet list.
func FormatNotes(notes []string) string {
	var b strings.Builder
	for i, n := range notes {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(n)
	}
	return b.String()
}
