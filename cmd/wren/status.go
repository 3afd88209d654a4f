// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"net/http"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running server",
		RunE:  runStatus,
	}
	addClientFlags(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	client := newAPIClient(cmd)
	out := cmd.OutOrStdout()

	var body struct {
		Status    string `json:"status"`
		Version   string `json:"version"`
		Providers map[string]struct {
			Available    bool  `json:"available"`
			FailureCount int64 `json:"failure_count"`
		} `json:"providers"`
	}
	if err := client.do(cmd.Context(), http.MethodGet, "/health", nil, &body); err != nil {
		if wrenerr.HasCode(err, wrenerr.CodeCLIServerDown) {
			_, _ = fmt.Fprintf(out, "Wren at %s is not running\n", client.addr)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "Status: %s (version %s)\n", body.Status, body.Version)
	if len(body.Providers) == 0 {
		return nil
	}

	names := make([]string, 0, len(body.Providers))
	for name := range body.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\nPROVIDER\tAVAILABLE\tFAILURES")
	for _, name := range names {
		p := body.Providers[name]
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%d\n", name, p.Available, p.FailureCount)
	}
	return tw.Flush()
}
