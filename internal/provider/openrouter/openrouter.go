// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openrouter routes chat through OpenRouter's OpenAI-compatible API.
// Model ids keep their vendor prefix, so a configured ref reads
// "openrouter/anthropic/claude-sonnet-4-5".
package openrouter

import (
	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/provider/openai"
)

const (
	name    = "openrouter"
	baseURL = "https://openrouter.ai/api/v1/"
)

type Config struct {
	APIKey  string
	BaseURL string
	// AppName and AppURL identify wren on OpenRouter's usage pages.
	AppName string
	AppURL  string
}

type Provider = openai.Provider

func New(cfg Config) (*Provider, error) {
	base := cfg.BaseURL
	if base == "" {
		base = baseURL
	}

	var extra []option.RequestOption
	for header, v := range map[string]string{"HTTP-Referer": cfg.AppURL, "X-Title": cfg.AppName} {
		if v != "" {
			extra = append(extra, option.WithHeader(header, v))
		}
	}
	return openai.NewCompatible(name, openai.Config{APIKey: cfg.APIKey, BaseURL: base}, catalog, extra...)
}

var catalog = []provider.ModelInfo{
	provider.Model(name, "anthropic/claude-sonnet-4-5", "Claude Sonnet 4.5", 200_000, 16000, provider.Thinking),
	provider.Model(name, "openai/gpt-4.1", "GPT-4.1", 128_000, 32768),
	provider.Model(name, "google/gemini-2.5-flash", "Gemini 2.5 Flash", 1_000_000, 65536, provider.AudioInput, provider.Thinking),
	provider.Model(name, "meta-llama/llama-4-maverick", "Llama 4 Maverick", 128_000, 32768),
}
