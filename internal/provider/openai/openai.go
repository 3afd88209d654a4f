// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai is the Chat Completions backend. NewCompatible points it
// at any OpenAI-compatible endpoint; the openrouter package builds on that.
package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/wren/internal/provider"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

type Config struct {
	APIKey  string
	BaseURL string
}

// Provider streams completions from a Chat Completions endpoint.
type Provider struct {
	*provider.Base
	client openaisdk.Client
}

func New(cfg Config) (*Provider, error) {
	return NewCompatible("openai", cfg, catalog("openai"))
}

// NewCompatible builds a provider named name for an OpenAI-compatible
// service. extra options are applied to every request.
func NewCompatible(name string, cfg Config, models []provider.ModelInfo, extra ...option.RequestOption) (*Provider, error) {
	base, err := provider.NewBase(name, cfg.APIKey, models)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{Base: base, client: openaisdk.NewClient(append(opts, extra...)...)}, nil
}

func catalog(name string) []provider.ModelInfo {
	return []provider.ModelInfo{
		provider.Model(name, "gpt-4.1", "GPT-4.1", 128_000, 32768),
		provider.Model(name, "gpt-4.1-mini", "GPT-4.1 Mini", 128_000, 16384),
		provider.Model(name, "gpt-4o-audio-preview", "GPT-4o Audio", 128_000, 16384, provider.AudioInput),
		provider.Model(name, "o4-mini", "o4-mini", 200_000, 100_000, provider.Thinking),
	}
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeProviderRequestInvalid, "%s: building request params", p.Name())
	}

	return p.Stream(ctx, func(emit provider.Emit) error {
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !emit(provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: choice.Delta.Content}) {
					return nil
				}
			}
			// With include_usage the final chunk has no choices and carries usage.
			if u := chunk.Usage; u.PromptTokens > 0 || u.CompletionTokens > 0 {
				emit(provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
					InputTokens:     int(u.PromptTokens),
					OutputTokens:    int(u.CompletionTokens),
					CacheReadTokens: int(u.PromptTokensDetails.CachedTokens),
				}})
			}
		}
		return stream.Err()
	}), nil
}

func buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:         shared.ChatModel(req.Model),
		Messages:      msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{IncludeUsage: param.NewOpt(true)},
	}
	if n := req.Options.MaxTokens; n > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(n))
	}
	if t := req.Options.Temperature; t != nil {
		params.Temperature = param.NewOpt(float64(*t))
	}
	if stop := req.Options.StopSequences; len(stop) > 0 {
		params.Stop = openaisdk.ChatCompletionNewParamsStopUnion{OfStringArray: stop}
	}
	return params, nil
}

// convertMessages puts the system prompt first, then the turns in order.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, openaisdk.SystemMessage(systemPrompt))
	}
	for _, m := range msgs {
		switch m.Role {
		case provider.MessageRoleUser:
			out = append(out, openaisdk.UserMessage(m.Content))
		case provider.MessageRoleAssistant:
			out = append(out, openaisdk.AssistantMessage(m.Content))
		case provider.MessageRoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		default:
			return nil, wrenerr.Errorf(wrenerr.CodeProviderRequestInvalid, "unsupported message role %q", m.Role)
		}
	}
	return out, nil
}
