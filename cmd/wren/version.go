// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags at release time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// buildVersion falls back to the module and VCS data stamped by `go install`
// when the release ldflags are absent.
func buildVersion() (ver, rev, built string) {
	ver, rev, built = version, commit, date
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ver, rev, built
	}
	if ver == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		ver = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && rev == "unknown":
			rev = s.Value
		case s.Key == "vcs.time" && built == "unknown":
			built = s.Value
		}
	}
	return ver, rev, built
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print wren version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, c, d := buildVersion()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wren %s (commit: %s, built: %s)\n", v, c, d)
			return err
		},
	}
}
