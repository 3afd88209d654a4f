// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google is the Gemini chat backend. It is the default for new
// installs because the same key also covers Gemini speech.
package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/sigil-dev/wren/internal/provider"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const name = "google"

type Config struct {
	APIKey  string
	BaseURL string
}

// Provider streams completions from the Gemini API.
type Provider struct {
	*provider.Base
	client *genai.Client
}

func New(cfg Config) (*Provider, error) {
	base, err := provider.NewBase(name, cfg.APIKey, catalog)
	if err != nil {
		return nil, err
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeProviderUpstreamFailure, "google: creating client")
	}
	return &Provider{Base: base, client: client}, nil
}

var catalog = []provider.ModelInfo{
	provider.Model(name, "gemini-2.5-pro", "Gemini 2.5 Pro", 1_000_000, 65536, provider.AudioInput, provider.Thinking),
	provider.Model(name, "gemini-2.5-flash", "Gemini 2.5 Flash", 1_000_000, 65536, provider.AudioInput, provider.Thinking),
	provider.Model(name, "gemini-2.0-flash", "Gemini 2.0 Flash", 1_000_000, 8192, provider.AudioInput),
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	gc := buildConfig(req)

	return p.Stream(ctx, func(emit provider.Emit) error {
		for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, gc) {
			if err != nil {
				return err
			}
			if !emitResponse(resp, emit) {
				return nil
			}
		}
		return nil
	}), nil
}

// emitResponse forwards the reply text and usage of one streamed chunk.
// Thought summaries are not part of the reply.
func emitResponse(resp *genai.GenerateContentResponse, emit provider.Emit) bool {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			if !emit(provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: part.Text}) {
				return false
			}
		}
	}
	if u := resp.UsageMetadata; u != nil {
		return emit(provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{
			InputTokens:     int(u.PromptTokenCount),
			OutputTokens:    int(u.CandidatesTokenCount),
			CacheReadTokens: int(u.CachedContentTokenCount),
		}})
	}
	return true
}

func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{StopSequences: req.Options.StopSequences}
	if t := req.Options.Temperature; t != nil {
		gc.Temperature = genai.Ptr(*t)
	}
	if req.Options.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return gc
}

// convertMessages maps chat turns onto Gemini contents. System messages are
// dropped; the system prompt travels in the request config.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role
		switch m.Role {
		case provider.MessageRoleUser:
			role = genai.RoleUser
		case provider.MessageRoleAssistant:
			role = genai.RoleModel
		case provider.MessageRoleSystem:
			continue
		default:
			return nil, wrenerr.Errorf(wrenerr.CodeProviderRequestInvalid, "google: unsupported message role %q", m.Role)
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents, nil
}
