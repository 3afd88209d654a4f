// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/audio"
	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/server"
	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const defaultOut = "api/openapi/spec.json"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "openapi-gen [output]",
		Short: "Write the OpenAPI document for the wren HTTP API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := defaultOut
			if len(args) == 1 {
				out = args[0]
			}
			doc, err := generateSpec()
			if err != nil {
				return err
			}
			if check {
				return checkSpec(out, doc)
			}
			return writeSpec(cmd, out, doc)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "fail if the file on disk is out of date instead of writing it")
	return cmd
}

func writeSpec(cmd *cobra.Command, out string, doc []byte) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "creating output dir: %w", err)
	}
	if err := os.WriteFile(out, doc, 0o644); err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "writing %s: %w", out, err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "OpenAPI spec written to %s\n", out)
	return err
}

func checkSpec(out string, doc []byte) error {
	current, err := os.ReadFile(out)
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "reading %s: %w", out, err)
	}
	if !bytes.Equal(bytes.TrimSpace(current), bytes.TrimSpace(doc)) {
		return wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "%s is stale; run openapi-gen to regenerate", out)
	}
	return nil
}

// generateSpec builds a server with every route registered and returns the
// OpenAPI document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubSessions{}, stubJournals{}, audio.NewMemoryStore(), provider.NewRegistry())
	if err != nil {
		return nil, wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
	})
	if err != nil {
		return nil, wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Stubs for schema discovery. Handlers are never invoked.

type stubSessions struct{}

func (stubSessions) Start(context.Context, string, string) (*store.Session, error) { return nil, nil }
func (stubSessions) Turn(context.Context, string, string, agent.TurnInput) (*agent.TurnResult, error) {
	return nil, nil
}

func (stubSessions) End(context.Context, string, string, bool) (*agent.EndResult, error) {
	return nil, nil
}
func (stubSessions) Get(context.Context, string, string) (*store.Session, error) { return nil, nil }
func (stubSessions) List(context.Context, string, store.ListOpts) ([]*store.Session, error) {
	return nil, nil
}

func (stubSessions) Messages(context.Context, string, string) ([]*store.Message, error) {
	return nil, nil
}

func (stubSessions) EndRecord(context.Context, string, string) (*store.EndRecord, error) {
	return nil, nil
}

func (stubSessions) UpdateMessage(context.Context, string, string, string) (*store.Message, error) {
	return nil, nil
}
func (stubSessions) DeleteMessage(context.Context, string, string) error { return nil }

type stubJournals struct{}

func (stubJournals) Create(context.Context, string, agent.JournalInput) (*store.Journal, error) {
	return nil, nil
}
func (stubJournals) Get(context.Context, string, string) (*store.Journal, error) { return nil, nil }
func (stubJournals) List(context.Context, string, store.ListOpts) ([]*store.Journal, error) {
	return nil, nil
}

func (stubJournals) Update(context.Context, string, string, agent.JournalInput) (*store.Journal, error) {
	return nil, nil
}
func (stubJournals) Delete(context.Context, string, string) error { return nil }
func (stubJournals) Reply(context.Context, string, string) (*agent.TurnResult, error) {
	return nil, nil
}

func (stubJournals) Replies(context.Context, string, string) ([]*store.Message, error) {
	return nil, nil
}
