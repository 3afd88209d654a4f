// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/provider"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func textEvents(parts ...string) []provider.ChatEvent {
	var evs []provider.ChatEvent
	for _, p := range parts {
		evs = append(evs, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: p})
	}
	return append(evs, provider.ChatEvent{Type: provider.EventTypeDone})
}

func TestProviderGenerator_Reply(t *testing.T) {
	prov := newScriptedProvider("google", textEvents("I hear ", "you.")...)
	reg := provider.NewRegistry()
	reg.Register("google", prov)
	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))

	gen := agent.NewProviderGenerator(reg, agent.ProviderGeneratorConfig{MaxTokens: 256})
	got, err := gen.Generate(context.Background(), agent.GenerateRequest{
		Context:      "System prompt: Be kind\nUser: hi\nEve:",
		Mode:         agent.ModeReply,
		SystemPrompt: "Be kind",
	})
	require.NoError(t, err)
	assert.Equal(t, "I hear you.", got)

	req := <-prov.requests
	assert.Equal(t, "gemini-2.5-flash", req.Model)
	assert.Equal(t, "Be kind", req.SystemPrompt)
	assert.Equal(t, 256, req.Options.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, provider.MessageRoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "User: hi")
}

func TestProviderGenerator_ModePrompts(t *testing.T) {
	prov := newScriptedProvider("google", textEvents("ok")...)
	reg := provider.NewRegistry()
	reg.Register("google", prov)
	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))
	gen := agent.NewProviderGenerator(reg, agent.ProviderGeneratorConfig{})

	_, err := gen.Generate(context.Background(), agent.GenerateRequest{Context: "User: hi", Mode: agent.ModeSummarize})
	require.NoError(t, err)
	req := <-prov.requests
	assert.Contains(t, req.Messages[0].Content, "Summarize the following therapy-like conversation")
	assert.Contains(t, req.Messages[0].Content, "User: hi")

	_, err = gen.Generate(context.Background(), agent.GenerateRequest{Context: "User: hi", Mode: agent.ModeNotes})
	require.NoError(t, err)
	req = <-prov.requests
	assert.Contains(t, req.Messages[0].Content, "exactly 5")

	_, err = gen.Generate(context.Background(), agent.GenerateRequest{Context: "Journal: x\nEve:", Mode: agent.ModeReply})
	require.NoError(t, err)
	req = <-prov.requests
	assert.Contains(t, req.SystemPrompt, "Eve")
}

func TestProviderGenerator_PurposeOverride(t *testing.T) {
	live := newScriptedProvider("anthropic", textEvents("live")...)
	cheap := newScriptedProvider("openai", textEvents("summary")...)
	reg := provider.NewRegistry()
	reg.Register("anthropic", live)
	reg.Register("openai", cheap)
	require.NoError(t, reg.SetDefault("anthropic/claude-sonnet-4-5"))
	require.NoError(t, reg.SetOverride(string(agent.ModeSummarize), "openai/gpt-4.1-mini"))

	gen := agent.NewProviderGenerator(reg, agent.ProviderGeneratorConfig{})
	got, err := gen.Generate(context.Background(), agent.GenerateRequest{Context: "x", Mode: agent.ModeSummarize})
	require.NoError(t, err)
	assert.Equal(t, "summary", got)
	assert.Equal(t, "gpt-4.1-mini", (<-cheap.requests).Model)
	assert.Empty(t, live.requests)
}

func TestProviderGenerator_FailsOverOnStreamError(t *testing.T) {
	broken := newScriptedProvider("google",
		provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: "partial"},
		provider.ChatEvent{Type: provider.EventTypeError, Error: "overloaded"},
	)
	backup := newScriptedProvider("anthropic", textEvents("from backup")...)
	reg := provider.NewRegistry()
	reg.Register("google", broken)
	reg.Register("anthropic", backup)
	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))
	require.NoError(t, reg.SetFailover([]string{"anthropic/claude-haiku-4-5"}))

	gen := agent.NewProviderGenerator(reg, agent.ProviderGeneratorConfig{})
	got, err := gen.Generate(context.Background(), agent.GenerateRequest{Context: "x", Mode: agent.ModeReply})
	require.NoError(t, err)
	assert.Equal(t, "from backup", got, "partial text from a failed stream is discarded")
	assert.Equal(t, int32(1), broken.failures.Load())
}

func TestProviderGenerator_AllFail(t *testing.T) {
	broken := newScriptedProvider("google")
	broken.chatErr = wrenerr.New(wrenerr.CodeProviderUpstreamFailure, "connection refused")
	reg := provider.NewRegistry()
	reg.Register("google", broken)
	require.NoError(t, reg.SetDefault("google/gemini-2.5-flash"))

	gen := agent.NewProviderGenerator(reg, agent.ProviderGeneratorConfig{})
	_, err := gen.Generate(context.Background(), agent.GenerateRequest{Context: "x", Mode: agent.ModeReply})
	require.Error(t, err)
	assert.True(t, wrenerr.IsUpstreamFailure(err))
	assert.Equal(t, int32(1), broken.failures.Load())
}

func TestProviderGenerator_NoDefault(t *testing.T) {
	gen := agent.NewProviderGenerator(provider.NewRegistry(), agent.ProviderGeneratorConfig{})
	_, err := gen.Generate(context.Background(), agent.GenerateRequest{Context: "x", Mode: agent.ModeReply})
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeProviderNoDefault))
}

func TestNormalizeNotes(t *testing.T) {
	notes := agent.NormalizeNotes(testNotes, agent.NotesCount)
	assert.Equal(t, []string{
		"Take a short walk after work",
		"Write down one good moment",
		"Call a friend",
		"Sleep before midnight",
		"Plan a quiet evening",
	}, notes)

	assert.Equal(t, []string{"Only one", "3 walks per week"},
		agent.NormalizeNotes("\n  - Only one\n\n3 walks per week\n", agent.NotesCount))
	assert.Empty(t, agent.NormalizeNotes("  \n ", agent.NotesCount))
}

func TestFormatNotes(t *testing.T) {
	assert.Equal(t, "- a\n- b", agent.FormatNotes([]string{"a", "b"}))
	assert.Empty(t, agent.FormatNotes(nil))
}
