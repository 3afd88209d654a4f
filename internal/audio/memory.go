// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audio

import (
	"bytes"
	"context"
	"sync"
)

const memoryScheme = "mem"

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[Locator]Blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[Locator]Blob)}
}

func (m *MemoryStore) Put(_ context.Context, data []byte, hint Hint) (Locator, error) {
	if err := CheckPut(data); err != nil {
		return "", err
	}

	loc := NewLocator(memoryScheme, hint.MIMEType)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[loc] = Blob{Data: bytes.Clone(data), MIMEType: MIMETypeFor(extOf(loc))}
	return loc, nil
}

func (m *MemoryStore) Get(_ context.Context, loc Locator) (*Blob, error) {
	if _, err := ParseFor(loc, memoryScheme); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[loc]
	if !ok {
		return nil, NotFound(loc)
	}
	return &Blob{Data: bytes.Clone(blob.Data), MIMEType: blob.MIMEType}, nil
}

// Len reports how many blobs are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
