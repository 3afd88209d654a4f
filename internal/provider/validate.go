// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// ProviderName identifies a vendor whose key `wren init` can check.
type ProviderName string

const (
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOpenAI     ProviderName = "openai"
	ProviderGoogle     ProviderName = "google"
	ProviderOpenRouter ProviderName = "openrouter"
)

// keyCheck is a cheap authenticated GET that succeeds only with a good key.
type keyCheck struct {
	url  string
	auth func(h http.Header, key string)
}

func bearer(h http.Header, key string) { h.Set("Authorization", "Bearer "+key) }

var keyChecks = map[ProviderName]keyCheck{
	ProviderAnthropic: {
		url: "https://api.anthropic.com/v1/models",
		auth: func(h http.Header, key string) {
			h.Set("x-api-key", key)
			h.Set("anthropic-version", "2023-06-01")
		},
	},
	ProviderGoogle: {
		url:  "https://generativelanguage.googleapis.com/v1/models",
		auth: func(h http.Header, key string) { h.Set("x-goog-api-key", key) },
	},
	ProviderOpenAI:     {url: "https://api.openai.com/v1/models", auth: bearer},
	ProviderOpenRouter: {url: "https://openrouter.ai/api/v1/models", auth: bearer},
}

// ValidateKey lists the vendor's models with key and reports whether the
// key was accepted.
func ValidateKey(ctx context.Context, client *http.Client, name ProviderName, key string) error {
	return ValidateKeyWithURL(ctx, client, name, key, "")
}

// ValidateKeyWithURL is ValidateKey against url instead of the vendor's
// models endpoint. An empty url keeps the vendor default.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, name ProviderName, key, url string) error {
	check, ok := keyChecks[name]
	if !ok {
		return wrenerr.Errorf(wrenerr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}
	if url == "" {
		url = check.url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	check.auth(req.Header, key)

	resp, err := client.Do(req)
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeProviderKeyCheckFailed, "validating %s key: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return wrenerr.Errorf(wrenerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	case resp.StatusCode >= 400:
		return wrenerr.Errorf(wrenerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
