// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"path/filepath"
	"testing"

	"github.com/sigil-dev/wren/internal/store"
	_ "github.com/sigil-dev/wren/internal/store/memory" // register memory backend
	_ "github.com/sigil-dev/wren/internal/store/sqlite" // register sqlite backend
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := &store.StorageConfig{
		Backend: "sqlite",
		Path:    filepath.Join(t.TempDir(), "nested", "wren.db"),
	}

	st, err := store.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	assert.NotNil(t, st.Sessions())
	assert.NotNil(t, st.Journals())
	assert.NotNil(t, st.EndRecords())
}

func TestOpen_DefaultBackendIsSQLite(t *testing.T) {
	st, err := store.Open(&store.StorageConfig{Path: filepath.Join(t.TempDir(), "wren.db")})
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestOpen_Memory(t *testing.T) {
	st, err := store.Open(&store.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := store.Open(&store.StorageConfig{Backend: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeStoreBackendUnsupported))
}

func TestBackends_ListsRegistered(t *testing.T) {
	names := store.Backends()
	assert.Contains(t, names, "memory")
	assert.Contains(t, names, "sqlite")
}

func TestStorageConfig_Location(t *testing.T) {
	tests := []struct {
		cfg  store.StorageConfig
		want string
	}{
		{store.StorageConfig{Path: "/data/wren.db"}, "/data/wren.db"},
		{store.StorageConfig{Backend: "postgres", DSN: "postgres://wren:hunter2@db:5432/wren"}, "postgres://wren:xxxxx@db:5432/wren"},
		{store.StorageConfig{Backend: "postgres", DSN: "host=db password=hunter2"}, "(dsn)"},
	}
	for _, tt := range tests {
		got := tt.cfg.Location()
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, "hunter2")
	}
}

func TestRegisterBackend_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		store.RegisterBackend("memory", func(*store.StorageConfig) (store.Store, error) { return nil, nil })
	})
}
