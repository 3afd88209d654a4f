// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/provider"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func TestNewBase_RequiresKey(t *testing.T) {
	_, err := provider.NewBase("openai", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai: missing api_key")
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderRequestInvalid))
}

func TestBase_StatusReportsCooldown(t *testing.T) {
	b, err := provider.NewBase("google", "k", []provider.ModelInfo{
		provider.Model("google", "gemini-2.5-flash", "Gemini 2.5 Flash", 1_000_000, 65536, provider.AudioInput),
	})
	require.NoError(t, err)
	ctx := context.Background()

	st, err := b.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, provider.ProviderStatus{Available: true, Provider: "google", Message: "ok"}, st)

	b.RecordFailure()
	st, err = b.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Available)
	assert.True(t, strings.HasPrefix(st.Message, "cooling down until "), st.Message)

	models, err := b.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
	models[0].ID = "mutated"
	again, _ := b.ListModels(ctx)
	assert.Equal(t, "gemini-2.5-flash", again[0].ID)
}

func TestModel_Traits(t *testing.T) {
	m := provider.Model("openai", "o4-mini", "o4-mini", 200_000, 100_000, provider.Thinking)
	assert.Equal(t, provider.ModelCapabilities{
		SupportsStreaming: true,
		SupportsThinking:  true,
		MaxContextTokens:  200_000,
		MaxOutputTokens:   100_000,
	}, m.Capabilities)
	assert.Equal(t, "openai", m.Provider)
}
