// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/provider"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("anthropic", newMockProvider("anthropic", true))

	got, err := reg.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Name())

	_, err = reg.Get("nonexistent")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderNotFound))
	assert.True(t, wrenerr.IsNotFound(err))
}

func TestRegistry_Names(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("openai", newMockProvider("openai", true))
	reg.Register("google", newMockProvider("google", true))

	assert.Equal(t, []string{"google", "openai"}, reg.Names())
}

func TestRegistry_RouteDefault(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("google", newMockProvider("google", true))
	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))

	p, model, err := reg.Route(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
	assert.Equal(t, "gemini-2.5-flash", model)
}

func TestRegistry_RoutePurposeOverride(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("google", newMockProvider("google", true))
	reg.Register("anthropic", newMockProvider("anthropic", true))

	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))
	require.NoError(t, reg.SetOverride("summarize", "anthropic/claude-haiku-4-5"))

	ctx := context.Background()

	p, model, err := reg.Route(ctx, "reply", "")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
	assert.Equal(t, "gemini-2.5-flash", model)

	p, model, err = reg.Route(ctx, "summarize", "")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, "claude-haiku-4-5", model)
}

func TestRegistry_RouteExplicitModel(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("openai", newMockProvider("openai", true))

	ctx := context.Background()
	p, model, err := reg.Route(ctx, "reply", "openai/gpt-4.1-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4.1-mini", model)

	_, _, err = reg.Route(ctx, "reply", "gpt-4.1-mini")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderInvalidModelRef))
}

func TestParseModelRef(t *testing.T) {
	ref, err := provider.ParseModelRef("openrouter/anthropic/claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, provider.ModelRef{Provider: "openrouter", Model: "anthropic/claude-sonnet-4-5"}, ref)
	assert.Equal(t, "openrouter/anthropic/claude-sonnet-4-5", ref.String())

	for _, bad := range []string{"", "google", "/gemini", "google/"} {
		_, err := provider.ParseModelRef(bad)
		require.Error(t, err, bad)
		assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderInvalidModelRef), bad)
	}
}

func TestRegistry_SetDefaultRejectsBareName(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("google", newMockProvider("google", true))

	err := reg.SetDefault("google")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderInvalidModelRef))
}

func TestRegistry_NoDefault(t *testing.T) {
	reg := provider.NewRegistry()

	_, _, err := reg.Route(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderNoDefault))
}

func TestRegistry_SettersRejectUnknownProvider(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("google", newMockProvider("google", true))

	tests := []struct {
		name string
		call func() error
	}{
		{"default", func() error { return reg.SetDefault("anthropic/claude-sonnet-4-5") }},
		{"override", func() error { return reg.SetOverride("notes", "openai/gpt-4.1") }},
		{"failover", func() error { return reg.SetFailover([]string{"google/gemini-2.5-flash", "openrouter/x"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderNotFound))
		})
	}
	assert.Equal(t, 1, reg.MaxAttempts())
}

func TestRegistry_Failover(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("anthropic", newMockProvider("anthropic", false))
	reg.Register("openai", newMockProvider("openai", true))

	require.NoError(t, reg.SetDefault("anthropic/claude-sonnet-4-5"))
	require.NoError(t, reg.SetFailover([]string{"openai/gpt-4.1"}))
	assert.Equal(t, 2, reg.MaxAttempts())

	p, model, err := reg.Route(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4.1", model)
}

func TestRegistry_RouteExcluding(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("google", newMockProvider("google", true))
	reg.Register("openai", newMockProvider("openai", true))
	reg.Register("anthropic", newMockProvider("anthropic", true))

	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))
	require.NoError(t, reg.SetFailover([]string{"openai/gpt-4.1", "anthropic/claude-haiku-4-5"}))

	ctx := context.Background()
	p, _, err := reg.RouteExcluding(ctx, "", "", []string{"google"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, _, err = reg.RouteExcluding(ctx, "", "", []string{"google", "openai"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, _, err = reg.RouteExcluding(ctx, "", "", []string{"google", "openai", "anthropic"})
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderAllUnavailable))
}

func TestRegistry_AllProvidersDown(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("anthropic", newMockProvider("anthropic", false))
	reg.Register("openai", newMockProvider("openai", false))

	require.NoError(t, reg.SetDefault("anthropic/claude-sonnet-4-5"))
	require.NoError(t, reg.SetFailover([]string{"openai/gpt-4.1"}))

	_, _, err := reg.Route(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers")
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderAllUnavailable))
}

func TestRegistry_HealthRecoversAfterCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker, err := provider.NewHealthTracker(10 * time.Second)
	require.NoError(t, err)
	tracker.SetNowFunc(func() time.Time { return now })

	google := &trackedProvider{mockProvider: newMockProvider("google", true), HealthTracker: tracker}
	reg := provider.NewRegistry()
	reg.Register("google", google)
	reg.Register("openai", newMockProvider("openai", true))
	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))
	require.NoError(t, reg.SetFailover([]string{"openai/gpt-4.1"}))

	ctx := context.Background()
	google.RecordFailure()

	p, _, err := reg.Route(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	health := reg.Health()
	require.Contains(t, health, "google")
	assert.NotContains(t, health, "openai")
	assert.False(t, health["google"].Available)
	assert.Equal(t, int64(1), health["google"].FailureCount)

	tracker.SetNowFunc(func() time.Time { return now.Add(11 * time.Second) })
	p, _, err = reg.Route(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
}

func TestRegistry_CloseJoinsErrors(t *testing.T) {
	reg := provider.NewRegistry()
	failing := newMockProvider("openai", true)
	failing.closeErr = errors.New("connection reset")
	reg.Register("openai", failing)
	reg.Register("google", newMockProvider("google", true))

	err := reg.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	assert.NoError(t, provider.NewRegistry().Close())
}
