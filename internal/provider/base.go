// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"slices"
	"time"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Base is embedded by the SDK adapters. It supplies everything in Provider
// and HealthReporter except Chat: the name, a static model catalog and a
// HealthTracker that Stream feeds.
type Base struct {
	name   string
	models []ModelInfo
	health *HealthTracker
}

// NewBase returns a Base with the default cooldown. It fails when apiKey is
// empty, since every hosted backend needs one.
func NewBase(name, apiKey string, models []ModelInfo) (*Base, error) {
	if apiKey == "" {
		return nil, wrenerr.New(wrenerr.CodeProviderRequestInvalid,
			name+": missing api_key in config", wrenerr.FieldProvider(name))
	}
	health, err := NewHealthTracker(DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	return &Base{name: name, models: models, health: health}, nil
}

func (b *Base) Name() string { return b.name }

func (b *Base) Available(context.Context) bool { return b.health.IsHealthy() }

func (b *Base) ListModels(context.Context) ([]ModelInfo, error) {
	return slices.Clone(b.models), nil
}

// Status reports "ok", or when the provider is backing off, the time it
// will be tried again.
func (b *Base) Status(context.Context) (ProviderStatus, error) {
	m := b.health.HealthMetrics()
	msg := "ok"
	if !m.Available && m.CooldownUntil != nil {
		msg = "cooling down until " + m.CooldownUntil.UTC().Format(time.RFC3339)
	}
	return ProviderStatus{Available: m.Available, Provider: b.name, Message: msg}, nil
}

func (b *Base) RecordFailure()               { b.health.RecordFailure() }
func (b *Base) RecordSuccess()               { b.health.RecordSuccess() }
func (b *Base) HealthMetrics() HealthMetrics { return b.health.HealthMetrics() }

// Close is a no-op. The SDK clients hold no resources beyond pooled HTTP
// connections.
func (b *Base) Close() error { return nil }

// Stream is Stream bound to this provider's health.
func (b *Base) Stream(ctx context.Context, pump func(Emit) error) <-chan ChatEvent {
	return Stream(ctx, b.health, pump)
}
