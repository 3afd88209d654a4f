// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package tts renders agent replies as speech.
package tts

import (
	"context"
	"strings"
	"time"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Synthesizer converts text to audio. Implementations must be safe for
// concurrent use.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) (*Synthesis, error)
}

// Synthesis is rendered speech.
type Synthesis struct {
	Audio    []byte
	Duration time.Duration
	// Format is the container name ("wav", "mp3").
	Format   string
	Voice    string
	MIMEType string
}

// Config selects and configures a synthesis backend.
type Config struct {
	Backend      string `mapstructure:"backend"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	DefaultVoice string `mapstructure:"default_voice"`
	Language     string `mapstructure:"language"`
	SampleRate   int    `mapstructure:"sample_rate"`
}

// New builds the synthesizer named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "gemini":
		return NewGemini(ctx, cfg)
	case "cartesia":
		return NewCartesia(cfg)
	case "elevenlabs":
		return NewElevenLabs(cfg)
	case "mock", "silent":
		return &Silent{SampleRate: cfg.SampleRate}, nil
	default:
		return nil, wrenerr.New(wrenerr.CodeConfigValidateInvalidValue,
			"unknown tts backend",
			wrenerr.Field("backend", cfg.Backend),
		)
	}
}

func checkInput(name, text string) error {
	if strings.TrimSpace(text) == "" {
		return wrenerr.New(wrenerr.CodeServiceRequestInvalid,
			name+": text is empty",
			wrenerr.FieldProvider(name),
		)
	}
	return nil
}

func upstreamFailure(name string, err error, msg string) error {
	return wrenerr.Reclassify(err, wrenerr.CodeServiceSynthesizeUpstreamFailure,
		name+": "+msg,
		wrenerr.FieldProvider(name),
	)
}

func pick(voice, fallback string) string {
	if v := strings.TrimSpace(voice); v != "" {
		return v
	}
	return fallback
}

// Silent renders a short silent WAV clip. It backs the "mock" backend.
type Silent struct {
	SampleRate int
	// PerChar is the clip length per input character; defaults to 50ms.
	PerChar time.Duration
}

func (s *Silent) Name() string { return "mock" }

func (s *Silent) Synthesize(ctx context.Context, text, voice string) (*Synthesis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInput(s.Name(), text); err != nil {
		return nil, err
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	perChar := s.PerChar
	if perChar <= 0 {
		perChar = 50 * time.Millisecond
	}
	d := time.Duration(len([]rune(text))) * perChar
	samples := int(d.Seconds() * float64(rate))
	pcm := make([]byte, samples*bytesPerSample)

	wav := EncodeWAV(pcm, rate)
	return &Synthesis{
		Audio:    wav,
		Duration: PCMDuration(len(pcm), rate),
		Format:   "wav",
		Voice:    pick(voice, "silent"),
		MIMEType: "audio/wav",
	}, nil
}
