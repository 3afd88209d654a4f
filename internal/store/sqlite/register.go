// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", func(cfg *store.StorageConfig) (store.Store, error) {
		return openFile(cfg.Path)
	})
}

// openFile opens the database at path, creating its directory owner-only
// first. The database holds transcripts, so it is kept private.
func openFile(path string) (*Store, error) {
	if path == "" {
		return nil, wrenerr.New(wrenerr.CodeStoreInvalidInput, "sqlite backend requires a database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, wrenerr.Errorf(wrenerr.CodeStoreInvalidInput, "creating database directory: %w", err)
		}
	}
	return New(path)
}
