// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/config"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wren server",
		Long: "Load configuration, open storage, connect the speech and model services " +
			"and serve the HTTP API until interrupted.",
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

// loadConfig reads the config file with keyring secrets resolved. Without
// --config the default file is created on first use.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, explicit, err := resolveConfigPath(cmd)
	if err != nil {
		return nil, "", err
	}
	if !explicit {
		if _, err := config.Bootstrap(path); err != nil {
			return nil, "", err
		}
	}
	if fileExists(path) {
		config.WarnInsecurePermissions(path)
	}

	cfg, err := config.LoadWithSecrets(path, secretStoreFactory())
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(cmd.ErrOrStderr(), cfg.Logging, verbose)

	dataDir, err := resolveDataDir(cmd)
	if err != nil {
		return err
	}
	config.WarnInsecurePermissions(dataDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := Wire(ctx, cfg, dataDir)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "wiring wren")
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	slog.Info("wren listening",
		"addr", cfg.Server.Listen,
		"config", path,
		"data_dir", dataDir,
		"storage", cfg.Storage.Backend,
		"audio", cfg.Audio.Backend,
		"model", cfg.Models.Default,
	)
	return app.Start(ctx)
}
