// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package stt turns recorded user speech into text.
package stt

import (
	"context"
	"strings"
	"time"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Transcriber converts one audio clip to text. Implementations must be safe
// for concurrent use.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error)
}

// Transcript is the result of a transcription.
type Transcript struct {
	Text     string
	Language string
	// Duration is zero when the backend does not report it.
	Duration time.Duration
}

// Config selects and configures a transcription backend.
type Config struct {
	Backend  string `mapstructure:"backend"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
	// Prompt is sent alongside the audio to instruction-following backends.
	Prompt string `mapstructure:"prompt"`
	// MockText is what the mock backend returns for every clip.
	MockText string `mapstructure:"mock_text"`
}

// New builds the transcriber named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "gemini":
		return NewGemini(ctx, cfg)
	case "cartesia":
		return NewCartesia(cfg)
	case "mock":
		return &Static{Text: cfg.MockText}, nil
	default:
		return nil, wrenerr.New(wrenerr.CodeConfigValidateInvalidValue,
			"unknown stt backend",
			wrenerr.Field("backend", cfg.Backend),
		)
	}
}

func checkInput(name string, audio []byte) error {
	if len(audio) == 0 {
		return wrenerr.New(wrenerr.CodeServiceRequestInvalid,
			name+": audio is empty",
			wrenerr.FieldProvider(name),
		)
	}
	return nil
}

func upstreamFailure(name string, err error, msg string) error {
	return wrenerr.Reclassify(err, wrenerr.CodeServiceTranscribeUpstreamFailure,
		name+": "+msg,
		wrenerr.FieldProvider(name),
	)
}

// Static returns a fixed transcript. It backs the "mock" backend and tests.
type Static struct {
	Text     string
	Language string
	Err      error
}

func (s *Static) Name() string { return "mock" }

func (s *Static) Transcribe(ctx context.Context, audio []byte, _ string) (*Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInput(s.Name(), audio); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return &Transcript{Text: s.Text, Language: s.Language}, nil
}
