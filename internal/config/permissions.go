// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions logs a warning for each path other users can
// read and returns those paths. It is meant for the config file, which may
// hold API keys, and the data directory, which holds recordings and
// journals. Missing paths are skipped.
func WarnInsecurePermissions(paths ...string) []string {
	var exposed []string
	for _, path := range paths {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			slog.Debug("skipping permission check", "path", path, "error", err)
			continue
		}

		// Directories leak through the search bit as well as the read bit.
		var mask fs.FileMode = 0o044
		recommended := "0600"
		if info.IsDir() {
			mask = 0o055
			recommended = "0700"
		}
		if info.Mode().Perm()&mask == 0 {
			continue
		}

		slog.Warn("path is readable by other users, private data may be exposed",
			"path", path,
			"mode", info.Mode().Perm(),
			"recommended", recommended)
		exposed = append(exposed, path)
	}
	return exposed
}
