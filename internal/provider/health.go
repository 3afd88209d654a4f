// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"sync"
	"time"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// DefaultHealthCooldown is the back-off after a single failure.
const DefaultHealthCooldown = 30 * time.Second

// maxBackoffShift caps the back-off at 8x the base cooldown.
const maxBackoffShift = 3

// HealthMetrics is a JSON-safe snapshot of a provider's health.
type HealthMetrics struct {
	FailureCount        int64      `json:"failure_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	Available           bool       `json:"available"`
}

// HealthTracker decides when a failing provider may be tried again. Each
// failure in an unbroken streak doubles the cooldown, up to 8x the base.
// A single success clears the streak.
type HealthTracker struct {
	mu       sync.RWMutex
	base     time.Duration
	streak   int
	failedAt time.Time
	total    int64
	now      func() time.Time
}

// NewHealthTracker returns a healthy tracker with the given base cooldown.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, wrenerr.Errorf(wrenerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{base: cooldown, now: time.Now}, nil
}

// cooldownLocked is the back-off for the current streak.
func (h *HealthTracker) cooldownLocked() time.Duration {
	if h.streak == 0 {
		return 0
	}
	return h.base << min(h.streak-1, maxBackoffShift)
}

func (h *HealthTracker) availableLocked() bool {
	return h.streak == 0 || h.now().Sub(h.failedAt) >= h.cooldownLocked()
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.streak = 0
	h.mu.Unlock()
}

func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.streak++
	h.total++
	h.failedAt = h.now()
	h.mu.Unlock()
}

// SetNowFunc replaces the clock. Tests only.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.now = fn
	h.mu.Unlock()
}

func (h *HealthTracker) HealthMetrics() HealthMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := HealthMetrics{
		FailureCount:        h.total,
		ConsecutiveFailures: h.streak,
		Available:           h.availableLocked(),
	}
	if h.total > 0 {
		last := h.failedAt
		m.LastFailureAt = &last
	}
	if h.streak > 0 {
		until := h.failedAt.Add(h.cooldownLocked())
		m.CooldownUntil = &until
	}
	return m
}
