// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// DefaultConfigYAML is the commented config written on first run.
//
//go:embed wren.yaml.default
var DefaultConfigYAML []byte

func underHome(elem ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}

// DefaultDataDir is ~/.local/share/wren. The sqlite database and the
// filesystem audio store live there unless configured elsewhere.
func DefaultDataDir() (string, error) { return underHome(".local", "share", "wren") }

// DefaultConfigPath is ~/.config/wren/wren.yaml.
func DefaultConfigPath() (string, error) { return underHome(".config", "wren", "wren.yaml") }

// Bootstrap creates path with DefaultConfigYAML, owner-only, and reports
// whether it did. An existing file is left alone.
func Bootstrap(path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "creating config %s: %w", path, err)
	}
	_, werr := f.Write(DefaultConfigYAML)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return false, wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "writing config %s: %w", path, werr)
	}

	slog.Info("created default config", "path", path)
	return true, nil
}
