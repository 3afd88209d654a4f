// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"log/slog"
	"net/url"
	"slices"
	"sync"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// DefaultBackend is used when StorageConfig.Backend is empty.
const DefaultBackend = "sqlite"

// StorageConfig selects the backend for sessions, messages and journals.
type StorageConfig struct {
	Backend string // "sqlite", "postgres" or "memory"
	Path    string // sqlite database file
	DSN     string // postgres connection string
}

func (c *StorageConfig) backend() string {
	if c.Backend == "" {
		return DefaultBackend
	}
	return c.Backend
}

// Location is where the store lives, safe to log: the sqlite path, or the
// postgres URL with its password masked. Keyword-form DSNs are not echoed.
func (c *StorageConfig) Location() string {
	if c.DSN == "" {
		return c.Path
	}
	u, err := url.Parse(c.DSN)
	if err != nil || u.Scheme == "" {
		return "(dsn)"
	}
	return u.Redacted()
}

// Factory opens one backend.
type Factory func(cfg *StorageConfig) (Store, error)

var registry = struct {
	sync.RWMutex
	m map[string]Factory
}{m: map[string]Factory{}}

// RegisterBackend makes a backend available to Open. Backend packages call
// it from init; registering a name twice panics, as with database/sql
// drivers.
func RegisterBackend(name string, f Factory) {
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.m[name]; dup {
		panic("store: RegisterBackend called twice for " + name)
	}
	registry.m[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open opens the configured backend. The backend's package must be
// imported for its side effect of registering.
func Open(cfg *StorageConfig) (Store, error) {
	name := cfg.backend()
	registry.RLock()
	f, ok := registry.m[name]
	registry.RUnlock()
	if !ok {
		return nil, wrenerr.Errorf(wrenerr.CodeStoreBackendUnsupported,
			"unsupported storage backend: %q (available: %v)", name, Backends())
	}

	st, err := f(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("store opened", "backend", name, "location", cfg.Location())
	return st, nil
}
