// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/secrets"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// secretStoreFactory is swapped for an in-memory store in tests.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: `Secrets live under the "wren" service of the operating system keyring.
Config values of the form keyring://wren/<name> are read from here.

A bare provider name such as "google" stands for its API key, "google-api-key".`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <provider|name>",
			Short: "Store a secret read from the first line of stdin",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretSet,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored secret names",
			Args:  cobra.NoArgs,
			RunE:  runSecretList,
		},
		&cobra.Command{
			Use:   "delete <provider|name>",
			Short: "Delete a secret",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretDelete,
		},
		&cobra.Command{
			Use:   "check <provider>",
			Short: "Check a stored provider key against the provider's API",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretCheck,
		},
	)
	return cmd
}

func secretRef(arg string) secrets.Ref {
	if strings.Contains(arg, "-") {
		return secrets.Ref{Service: secrets.DefaultService, Key: arg}
	}
	return secrets.ProviderRef(arg)
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	ref := secretRef(args[0])

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Enter value for %s: ", ref.Key)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	value := strings.TrimSpace(line)
	switch {
	case value == "" && err != nil:
		return wrenerr.Errorf(wrenerr.CodeCLIInputInvalid, "reading secret: %w", err)
	case value == "":
		return wrenerr.New(wrenerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Store(ref.Service, ref.Key, value); err != nil {
		return wrenerr.Errorf(wrenerr.CodeSecretStoreFailure, "storing secret %q: %w", ref.Key, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s (%s)\n", ref.Key, ref.URI())
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.DefaultService)
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeSecretListFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}
	slices.Sort(keys)
	_, err = fmt.Fprintln(out, strings.Join(keys, "\n"))
	return err
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	ref := secretRef(args[0])

	err := secretStoreFactory().Delete(ref.Service, ref.Key)
	switch {
	case wrenerr.HasCode(err, wrenerr.CodeSecretNotFound):
		return wrenerr.Errorf(wrenerr.CodeSecretNotFound, "secret %q not found", ref.Key)
	case err != nil:
		return wrenerr.Errorf(wrenerr.CodeSecretDeleteFailure, "deleting secret %q: %w", ref.Key, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", ref.Key)
	return nil
}

func runSecretCheck(cmd *cobra.Command, args []string) error {
	name := args[0]
	ref := secrets.ProviderRef(name)

	key, err := secretStoreFactory().Retrieve(ref.Service, ref.Key)
	if err != nil {
		return wrenerr.Errorf(wrenerr.CodeSecretNotFound,
			"no key stored for %s; run wren secret set %s: %w", name, name, err)
	}
	if err := provider.ValidateKey(cmd.Context(), keyCheckClient, provider.ProviderName(name), key); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s key accepted\n", name)
	return nil
}
