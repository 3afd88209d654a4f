// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

// Trait switches on an optional capability in a catalog entry.
type Trait func(*ModelCapabilities)

// AudioInput marks models that accept audio parts alongside text.
func AudioInput(c *ModelCapabilities) { c.SupportsAudioInput = true }

// Thinking marks models with an extended reasoning mode.
func Thinking(c *ModelCapabilities) { c.SupportsThinking = true }

// Model builds a catalog entry. Every model wren talks to streams.
func Model(providerName, id, name string, contextTokens, outputTokens int, traits ...Trait) ModelInfo {
	caps := ModelCapabilities{
		SupportsStreaming: true,
		MaxContextTokens:  contextTokens,
		MaxOutputTokens:   outputTokens,
	}
	for _, t := range traits {
		t(&caps)
	}
	return ModelInfo{ID: id, Name: name, Provider: providerName, Capabilities: caps}
}
