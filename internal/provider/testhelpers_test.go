// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"

	"github.com/sigil-dev/wren/internal/provider"
)

// mockProvider replies "hello" and reports a fixed availability.
type mockProvider struct {
	name      string
	available bool
	closeErr  error
}

func newMockProvider(name string, available bool) *mockProvider {
	return &mockProvider{name: name, available: available}
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Available(context.Context) bool { return m.available }
func (m *mockProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (m *mockProvider) Close() error { return m.closeErr }

func (m *mockProvider) Chat(ctx context.Context, _ provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	return provider.Stream(ctx, nil, func(emit provider.Emit) error {
		emit(provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: "hello"})
		return nil
	}), nil
}

func (m *mockProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: m.available, Provider: m.name, Message: "ok"}, nil
}

// trackedProvider takes its availability from a HealthTracker the test
// controls.
type trackedProvider struct {
	*mockProvider
	*provider.HealthTracker
}

func (m *trackedProvider) Available(context.Context) bool { return m.IsHealthy() }
