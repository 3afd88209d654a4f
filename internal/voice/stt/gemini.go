// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package stt

import (
	"context"
	"strings"

	"google.golang.org/genai"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const (
	defaultGeminiModel  = "gemini-2.5-flash"
	defaultGeminiPrompt = "Generate a transcript of the speech. Reply with the spoken words only."
)

// contentGenerator is the slice of *genai.Models used for transcription.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini transcribes by sending the clip inline to a multimodal Gemini model.
type Gemini struct {
	models contentGenerator
	model  string
	prompt string
}

// NewGemini creates a Gemini transcriber. Returns an error if the API key is missing.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, wrenerr.New(wrenerr.CodeProviderRequestInvalid, "gemini stt: missing api_key in config", wrenerr.FieldProvider("gemini"))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeProviderUpstreamFailure, "gemini stt: creating client")
	}

	return newGemini(client.Models, cfg), nil
}

func newGemini(models contentGenerator, cfg Config) *Gemini {
	g := &Gemini{models: models, model: cfg.Model, prompt: cfg.Prompt}
	if g.model == "" {
		g.model = defaultGeminiModel
	}
	if g.prompt == "" {
		g.prompt = defaultGeminiPrompt
	}
	return g
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Transcribe(ctx context.Context, audio []byte, mimeType string) (*Transcript, error) {
	if err := checkInput(g.Name(), audio); err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: g.prompt},
			{InlineData: &genai.Blob{Data: audio, MIMEType: mimeType}},
		},
	}}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, upstreamFailure(g.Name(), err, "generate content")
	}

	var b strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" && !part.Thought {
					b.WriteString(part.Text)
				}
			}
			break
		}
	}

	return &Transcript{Text: strings.TrimSpace(b.String())}, nil
}
