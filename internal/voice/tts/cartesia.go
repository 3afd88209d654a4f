// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const (
	cartesiaBaseURL      = "https://api.cartesia.ai"
	cartesiaVersion      = "2025-04-16"
	defaultCartesiaModel = "sonic-3"
	defaultCartesiaVoice = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// Cartesia synthesizes through Cartesia's /tts/bytes endpoint as WAV.
type Cartesia struct {
	apiKey       string
	baseURL      string
	model        string
	defaultVoice string
	language     string
	sampleRate   int
	httpClient   *http.Client
}

// NewCartesia creates a Cartesia synthesizer.
func NewCartesia(cfg Config) (*Cartesia, error) {
	return NewCartesiaWithClient(cfg, &http.Client{Timeout: 2 * time.Minute})
}

// NewCartesiaWithClient creates a Cartesia synthesizer with a custom HTTP client.
func NewCartesiaWithClient(cfg Config, client *http.Client) (*Cartesia, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, wrenerr.New(wrenerr.CodeProviderRequestInvalid, "cartesia tts: missing api_key in config", wrenerr.FieldProvider("cartesia"))
	}
	if client == nil {
		client = &http.Client{}
	}
	c := &Cartesia{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		defaultVoice: pick(cfg.DefaultVoice, defaultCartesiaVoice),
		language:     cfg.Language,
		sampleRate:   cfg.SampleRate,
		httpClient:   client,
	}
	if c.baseURL == "" {
		c.baseURL = cartesiaBaseURL
	}
	if c.model == "" {
		c.model = defaultCartesiaModel
	}
	if c.sampleRate <= 0 {
		c.sampleRate = defaultSampleRate
	}
	return c, nil
}

func (c *Cartesia) Name() string { return "cartesia" }

type cartesiaTTSRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        cartesiaVoiceSpec    `json:"voice"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language,omitempty"`
}

type cartesiaVoiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

func (c *Cartesia) Synthesize(ctx context.Context, text, voice string) (*Synthesis, error) {
	if err := checkInput(c.Name(), text); err != nil {
		return nil, err
	}
	voice = pick(voice, c.defaultVoice)

	body, err := json.Marshal(cartesiaTTSRequest{
		ModelID:    c.model,
		Transcript: text,
		Voice:      cartesiaVoiceSpec{Mode: "id", ID: voice},
		OutputFormat: cartesiaOutputFormat{
			Container:  "wav",
			Encoding:   "pcm_s16le",
			SampleRate: c.sampleRate,
		},
		Language: c.language,
	})
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstreamFailure(c.Name(), err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, wrenerr.New(wrenerr.CodeServiceSynthesizeUpstreamFailure,
			fmt.Sprintf("cartesia: status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))),
			wrenerr.FieldProvider(c.Name()),
			wrenerr.Field("status", resp.StatusCode),
		)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstreamFailure(c.Name(), err, "read audio")
	}
	if len(wav) == 0 {
		return nil, wrenerr.New(wrenerr.CodeServiceSynthesizeUpstreamFailure,
			"cartesia: empty audio body",
			wrenerr.FieldProvider(c.Name()),
		)
	}

	return &Synthesis{
		Audio:    wav,
		Duration: WAVDuration(wav),
		Format:   "wav",
		Voice:    voice,
		MIMEType: "audio/wav",
	}, nil
}
