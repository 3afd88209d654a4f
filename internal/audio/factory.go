// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audio

import (
	"sync"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Config selects and configures an audio backend.
type Config struct {
	Backend string // "memory", "filesystem" (default) or "s3"
	Dir     string
	S3      S3Config
}

// S3Config configures the object storage backend.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// Factory opens a backend from its configuration.
type Factory func(cfg *Config) (Store, error)

var (
	factories = map[string]Factory{
		"memory": func(*Config) (Store, error) { return NewMemoryStore(), nil },
		"filesystem": func(cfg *Config) (Store, error) {
			return NewFileStore(cfg.Dir)
		},
	}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers an additional backend. Backend packages call
// this from init().
func RegisterBackend(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Open creates the store for the configured backend.
func Open(cfg *Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "filesystem"
	}

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, wrenerr.Errorf(wrenerr.CodeAudioBackendUnsupported, "unsupported audio backend: %q", backend)
	}
	return factory(cfg)
}
