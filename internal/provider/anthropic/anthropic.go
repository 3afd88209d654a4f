// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package anthropic is the Claude chat backend.
package anthropic

import (
	"context"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/wren/internal/provider"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const name = "anthropic"

// defaultMaxTokens applies when the request leaves MaxTokens unset; the
// Messages API requires a value. Spoken replies are short.
const defaultMaxTokens = 1024

type Config struct {
	APIKey  string
	BaseURL string
}

// Provider streams completions from the Anthropic Messages API.
type Provider struct {
	*provider.Base
	client anthropicsdk.Client
}

func New(cfg Config) (*Provider, error) {
	base, err := provider.NewBase(name, cfg.APIKey, catalog)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{Base: base, client: anthropicsdk.NewClient(opts...)}, nil
}

var catalog = []provider.ModelInfo{
	provider.Model(name, "claude-opus-4-6", "Claude Opus 4.6", 200_000, 32000, provider.Thinking),
	provider.Model(name, "claude-sonnet-4-5", "Claude Sonnet 4.5", 200_000, 16000, provider.Thinking),
	provider.Model(name, "claude-haiku-4-5", "Claude Haiku 4.5", 200_000, 8192),
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	return p.Stream(ctx, func(emit provider.Emit) error {
		stream := p.client.Messages.NewStreaming(ctx, params)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			ev, stop := translate(stream.Current())
			if ev != nil && !emit(*ev) {
				return nil
			}
			if stop {
				return nil
			}
		}
		return stream.Err()
	}), nil
}

// translate maps one SSE event to a chat event. stop is true once the
// message is complete.
func translate(ev anthropicsdk.MessageStreamEventUnion) (out *provider.ChatEvent, stop bool) {
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			return &provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: ev.Delta.Text}, false
		}
	case "message_start":
		u := ev.Message.Usage
		if u.InputTokens == 0 && u.OutputTokens == 0 {
			return nil, false
		}
		return &provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}}, false
	case "message_delta":
		return &provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
			InputTokens:  int(ev.Usage.InputTokens),
			OutputTokens: int(ev.Usage.OutputTokens),
		}}, false
	case "message_stop":
		return nil, true
	}
	return nil, false
}

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	params := anthropicsdk.MessageNewParams{
		Model:         anthropicsdk.Model(req.Model),
		Messages:      msgs,
		MaxTokens:     defaultMaxTokens,
		StopSequences: req.Options.StopSequences,
	}
	if req.Options.MaxTokens > 0 {
		params.MaxTokens = int64(req.Options.MaxTokens)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if t := req.Options.Temperature; t != nil {
		params.Temperature = anthropicsdk.Float(float64(*t))
	}
	return params, nil
}

// convertMessages drops system messages, which the API only accepts as the
// top-level system param.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropicsdk.NewTextBlock(m.Content)
		switch m.Role {
		case provider.MessageRoleUser:
			out = append(out, anthropicsdk.NewUserMessage(block))
		case provider.MessageRoleAssistant:
			out = append(out, anthropicsdk.NewAssistantMessage(block))
		case provider.MessageRoleSystem:
		default:
			return nil, wrenerr.Errorf(wrenerr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}
