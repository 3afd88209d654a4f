// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/config"
)

// NewRootCmd creates the root wren command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wren",
		Short:         "Wren, a voice journaling companion",
		Long:          "Wren runs spoken conversations with a supportive agent and keeps journals and session notes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				setupLogging(cmd.ErrOrStderr(), config.LoggingConfig{Level: "debug"}, true)
			}
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default ~/.config/wren/wren.yaml)")
	root.PersistentFlags().String("data-dir", "", "path to data directory (default ~/.local/share/wren)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newStatusCmd(),
		newSessionCmd(),
		newJournalCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// setupLogging installs the default slog logger. verbose forces debug level.
func setupLogging(w io.Writer, cfg config.LoggingConfig, verbose bool) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// resolveConfigPath returns the --config flag, or the default location.
func resolveConfigPath(cmd *cobra.Command) (string, bool, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, true, nil
	}
	path, err := config.DefaultConfigPath()
	return path, false, err
}

// resolveDataDir returns the --data-dir flag, or the default location.
func resolveDataDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		return dir, nil
	}
	return config.DefaultDataDir()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
