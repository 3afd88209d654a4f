// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openrouter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/provider/openrouter"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

var _ provider.Provider = (*openrouter.Provider)(nil)

func TestOpenRouterProvider_Basics(t *testing.T) {
	p, err := openrouter.New(openrouter.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)

	assert.Equal(t, "openrouter", p.Name())
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.Equal(t, "openrouter", m.Provider)
		assert.Contains(t, m.ID, "/", "OpenRouter model ids are vendor-qualified")
	}
}

func TestOpenRouterProvider_MissingAPIKey(t *testing.T) {
	_, err := openrouter.New(openrouter.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter")
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderRequestInvalid))
}

func TestOpenRouterProvider_SendsAttributionHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"ok"},"finish_reason":"stop"}]}` + "\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	p, err := openrouter.New(openrouter.Config{
		APIKey:  "k",
		BaseURL: srv.URL + "/",
		AppName: "wren",
		AppURL:  "https://wren.example",
	})
	require.NoError(t, err)

	ch, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "openai/gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var text strings.Builder
	for ev := range ch {
		text.WriteString(ev.Text)
	}
	assert.Equal(t, "ok", text.String())

	h := <-headers
	assert.Equal(t, "wren", h.Get("X-Title"))
	assert.Equal(t, "https://wren.example", h.Get("HTTP-Referer"))
}
