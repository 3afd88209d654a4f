// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/voice/tts"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func TestSessionCommands_Flow(t *testing.T) {
	addr := startTestServer(t)
	client := []string{"--address", addr, "--owner", "alice"}
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, append(args, client...)...)
		require.NoError(t, err, out)
		return out
	}

	id := strings.TrimSpace(run("session", "start", "--prompt", "Be supportive"))
	require.NotEmpty(t, id)

	out := run("session", "turn", id, "--text", "Work was hard")
	assert.Contains(t, out, "You: Work was hard")
	assert.Contains(t, out, "Eve: That sounds hard. What happened?")

	dir := t.TempDir()
	recording := filepath.Join(dir, "today.wav")
	require.NoError(t, os.WriteFile(recording, tts.EncodeWAV(make([]byte, 3200), 16000), 0o600))
	reply := filepath.Join(dir, "reply.wav")

	out = run("session", "turn", id, "--audio", recording, "--out", reply)
	assert.Contains(t, out, "You: I had a rough day")
	assert.Contains(t, out, "Saved reply audio to "+reply)
	data, err := os.ReadFile(reply)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "RIFF"))

	out = run("session", "show", id)
	assert.Equal(t, 4, strings.Count(out, "\n"))
	assert.Contains(t, out, "You: Work was hard\nEve: ")

	out = run("session", "list")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "active")

	out = run("session", "end", id)
	assert.Contains(t, out, "Session "+id+" ended")
	assert.Contains(t, out, "A hard day at work.")
	assert.Contains(t, out, "- Call a friend")
	assert.Contains(t, out, "Saved as journal")

	out = run("journal", "list")
	assert.Contains(t, out, "notes")
}

func TestSessionCommands_TurnAfterEnd(t *testing.T) {
	addr := startTestServer(t)

	out, err := execute(t, "session", "start", "--prompt", "P", "--address", addr, "--owner", "bob")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	_, err = execute(t, "session", "end", id, "--summarize=false", "--address", addr, "--owner", "bob")
	require.NoError(t, err)

	_, err = execute(t, "session", "turn", id, "--text", "hello", "--address", addr, "--owner", "bob")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeCLIRequest))
	assert.Contains(t, err.Error(), "409")
	assert.Equal(t, "agent.session.turn.inactive", wrenerr.FieldsOf(err)["server_code"])
}

func TestSessionCommands_OwnerIsolation(t *testing.T) {
	addr := startTestServer(t)

	out, err := execute(t, "session", "start", "--prompt", "P", "--address", addr, "--owner", "alice")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	_, err = execute(t, "session", "show", id, "--address", addr, "--owner", "mallory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	out, err = execute(t, "session", "list", "--address", addr, "--owner", "mallory")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")
}

func TestSessionCommands_UnsupportedRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0o600))

	_, err := execute(t, "session", "turn", "abc", "--audio", path, "--address", "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeCLIInputInvalid))
}

func TestSessionCommands_ServerDown(t *testing.T) {
	_, err := execute(t, "session", "list", "--address", "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeCLIServerDown))
}

func TestJournalCommands_Flow(t *testing.T) {
	addr := startTestServer(t)
	client := []string{"--address", addr, "--owner", "alice"}

	root := NewRootCmd()
	var buf strings.Builder
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetIn(strings.NewReader("Today I walked by the sea.\n"))
	root.SetArgs(append([]string{"journal", "write", "--title", "Tuesday", "--tag", "calm"}, client...))
	require.NoError(t, root.Execute(), buf.String())
	id := strings.TrimSpace(buf.String())
	require.NotEmpty(t, id)

	out, err := execute(t, append([]string{"journal", "list"}, client...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Tuesday")
	assert.Contains(t, out, "entry")

	out, err = execute(t, append([]string{"journal", "reply", id}, client...)...)
	require.NoError(t, err)
	assert.Equal(t, "Eve: That sounds hard. What happened?\n", out)

	out, err = execute(t, append([]string{"journal", "show", id}, client...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "# Tuesday")
	assert.Contains(t, out, "Today I walked by the sea.")
	assert.Contains(t, out, "Tags: calm")
	assert.Contains(t, out, "Eve: That sounds hard.")

	out, err = execute(t, append([]string{"journal", "delete", id}, client...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted journal "+id)

	_, err = execute(t, append([]string{"journal", "show", id}, client...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestJournalCommands_WriteFromFile(t *testing.T) {
	addr := startTestServer(t)
	path := filepath.Join(t.TempDir(), "entry.md")
	require.NoError(t, os.WriteFile(path, []byte("First line\nSecond line\n"), 0o600))

	_, err := execute(t, "journal", "write", "--file", path, "--address", addr, "--owner", "alice")
	require.NoError(t, err)

	out, err := execute(t, "journal", "list", "--address", addr, "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "First line")
	assert.NotContains(t, out, "Second line")
}

func TestJournalCommands_EmptyContent(t *testing.T) {
	_, err := execute(t, "journal", "write", "--content", "  ", "--address", "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeCLIInputInvalid))
}

func TestStatusCommand(t *testing.T) {
	addr := startTestServer(t)

	out, err := execute(t, "status", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: ok")
}

func TestStatusCommand_ServerDown(t *testing.T) {
	out, err := execute(t, "status", "--address", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "héll…", truncate("héllo wörld", 5))
}
