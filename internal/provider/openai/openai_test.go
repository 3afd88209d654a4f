// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/provider/openai"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

var (
	_ provider.Provider       = (*openai.Provider)(nil)
	_ provider.HealthReporter = (*openai.Provider)(nil)
)

func mustNewProvider(t *testing.T, baseURL string) *openai.Provider {
	t.Helper()
	p, err := openai.New(openai.Config{APIKey: "test-key-not-real", BaseURL: baseURL})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_Basics(t *testing.T) {
	p := mustNewProvider(t, "")
	ctx := context.Background()

	assert.Equal(t, "openai", p.Name())
	assert.True(t, p.Available(ctx))

	models, err := p.ListModels(ctx)
	require.NoError(t, err)
	ids := make(map[string]provider.ModelInfo, len(models))
	for _, m := range models {
		ids[m.ID] = m
		assert.Equal(t, "openai", m.Provider)
	}
	require.Contains(t, ids, "gpt-4.1")
	assert.True(t, ids["gpt-4o-audio-preview"].Capabilities.SupportsAudioInput)

	status, err := p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "openai", status.Provider)
	assert.NoError(t, p.Close())
}

func TestOpenAIProvider_MissingAPIKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, wrenerr.IsInvalidInput(err))
}

func TestConvertMessages(t *testing.T) {
	msgs, err := openai.ConvertMessages([]provider.Message{
		{Role: provider.MessageRoleUser, Content: "hi"},
		{Role: provider.MessageRoleAssistant, Content: "hello"},
	}, "You are Eve.")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)

	_, err = openai.ConvertMessages([]provider.Message{{Role: "tool"}}, "")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderRequestInvalid))
}

func TestBuildParams(t *testing.T) {
	temp := float32(0.5)
	params, err := openai.BuildParams(provider.ChatRequest{
		Model:    "gpt-4.1-mini",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "hi"}},
		Options:  provider.ChatOptions{Temperature: &temp, MaxTokens: 128},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", string(params.Model))
	assert.Equal(t, int64(128), params.MaxCompletionTokens.Value)
	assert.InDelta(t, 0.5, params.Temperature.Value, 1e-6)
}

const chunkFmt = `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`

func streamBody(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("data: ")
		b.WriteString(strings.Replace(chunkFmt, "%q", `"`+p+`"`, 1))
		b.WriteString("\n\n")
	}
	b.WriteString(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4.1","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":4,"total_tokens":13}}`)
	b.WriteString("\n\ndata: [DONE]\n\n")
	return b.String()
}

func TestOpenAIProvider_ChatStreamsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key-not-real", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(streamBody("I hear ", "you.")))
	}))
	defer srv.Close()

	p := mustNewProvider(t, srv.URL+"/")
	ch, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "rough day"}},
	})
	require.NoError(t, err)

	var text strings.Builder
	var usage *provider.Usage
	var last provider.ChatEvent
	for ev := range ch {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			text.WriteString(ev.Text)
		case provider.EventTypeUsage:
			usage = ev.Usage
		}
		last = ev
	}
	assert.Equal(t, "I hear you.", text.String())
	require.NotNil(t, usage)
	assert.Equal(t, 9, usage.InputTokens)
	assert.Equal(t, provider.EventTypeDone, last.Type)
}

func TestOpenAIProvider_ChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := mustNewProvider(t, srv.URL+"/")
	ch, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "gpt-4.1",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var last provider.ChatEvent
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, provider.EventTypeError, last.Type)
	assert.False(t, p.Available(context.Background()))
}
