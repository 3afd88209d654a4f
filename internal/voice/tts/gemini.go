// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tts

import (
	"context"
	"strings"

	"google.golang.org/genai"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const (
	defaultGeminiModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice = "Kore"
)

// contentGenerator is the slice of *genai.Models used for synthesis.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini synthesizes with a Gemini TTS model and a prebuilt voice. The model
// returns raw 24kHz PCM which is wrapped as WAV.
type Gemini struct {
	models       contentGenerator
	model        string
	defaultVoice string
	language     string
	sampleRate   int
}

// NewGemini creates a Gemini synthesizer. Returns an error if the API key is missing.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, wrenerr.New(wrenerr.CodeProviderRequestInvalid, "gemini tts: missing api_key in config", wrenerr.FieldProvider("gemini"))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeProviderUpstreamFailure, "gemini tts: creating client")
	}

	return newGemini(client.Models, cfg), nil
}

func newGemini(models contentGenerator, cfg Config) *Gemini {
	g := &Gemini{
		models:       models,
		model:        cfg.Model,
		defaultVoice: pick(cfg.DefaultVoice, defaultGeminiVoice),
		language:     cfg.Language,
		sampleRate:   cfg.SampleRate,
	}
	if g.model == "" {
		g.model = defaultGeminiModel
	}
	if g.sampleRate <= 0 {
		g.sampleRate = defaultSampleRate
	}
	return g
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Synthesize(ctx context.Context, text, voice string) (*Synthesis, error) {
	if err := checkInput(g.Name(), text); err != nil {
		return nil, err
	}
	voice = pick(voice, g.defaultVoice)

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: g.language,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: text}},
	}}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, upstreamFailure(g.Name(), err, "generate content")
	}

	var pcm []byte
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			if mt := part.InlineData.MIMEType; mt != "" && !strings.HasPrefix(mt, "audio/") {
				continue
			}
			pcm = append(pcm, part.InlineData.Data...)
		}
	}
	if len(pcm) == 0 {
		return nil, wrenerr.New(wrenerr.CodeServiceSynthesizeUpstreamFailure,
			"gemini: response carried no audio",
			wrenerr.FieldProvider(g.Name()),
		)
	}

	return &Synthesis{
		Audio:    EncodeWAV(pcm, g.sampleRate),
		Duration: PCMDuration(len(pcm), g.sampleRate),
		Format:   "wav",
		Voice:    voice,
		MIMEType: "audio/wav",
	}, nil
}
