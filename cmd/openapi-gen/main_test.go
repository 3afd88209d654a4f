// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSpec(t *testing.T) {
	spec, err := generateSpec()
	require.NoError(t, err)
	assert.Contains(t, string(spec), "3.1")
	for _, path := range []string{
		"/health",
		"/api/v1/sessions",
		"/api/v1/sessions/{id}/turns",
		"/api/v1/sessions/{id}/end",
		"/api/v1/audio/{locator}",
		"/api/v1/messages/{id}",
		"/api/v1/journals/{id}/reply",
	} {
		assert.Contains(t, string(spec), path)
	}
}

func TestGenerateSpec_ValidJSON(t *testing.T) {
	spec, err := generateSpec()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(spec, &doc))
	assert.Contains(t, doc, "paths")
	assert.Contains(t, doc, "components")
}

func TestRootCmd_WriteThenCheck(t *testing.T) {
	out := filepath.Join(t.TempDir(), "openapi", "spec.json")

	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{out})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "written to "+out)

	check := newRootCmd()
	check.SetArgs([]string{"--check", out})
	require.NoError(t, check.Execute())

	require.NoError(t, os.WriteFile(out, []byte("{}"), 0o644))
	stale := newRootCmd()
	stale.SetArgs([]string{"--check", out})
	stale.SilenceUsage = true
	err := stale.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")
}
