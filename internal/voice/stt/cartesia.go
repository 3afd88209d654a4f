// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sigil-dev/wren/internal/audio"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const (
	cartesiaBaseURL      = "https://api.cartesia.ai"
	cartesiaVersion      = "2025-04-16"
	defaultCartesiaModel = "ink-whisper"
)

// Cartesia transcribes through Cartesia's batch /stt endpoint.
type Cartesia struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// NewCartesia creates a Cartesia transcriber.
func NewCartesia(cfg Config) (*Cartesia, error) {
	return NewCartesiaWithClient(cfg, &http.Client{Timeout: 2 * time.Minute})
}

// NewCartesiaWithClient creates a Cartesia transcriber with a custom HTTP client.
func NewCartesiaWithClient(cfg Config, client *http.Client) (*Cartesia, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, wrenerr.New(wrenerr.CodeProviderRequestInvalid, "cartesia stt: missing api_key in config", wrenerr.FieldProvider("cartesia"))
	}
	if client == nil {
		client = &http.Client{}
	}
	c := &Cartesia{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		language:   cfg.Language,
		httpClient: client,
	}
	if c.baseURL == "" {
		c.baseURL = cartesiaBaseURL
	}
	if c.model == "" {
		c.model = defaultCartesiaModel
	}
	return c, nil
}

func (c *Cartesia) Name() string { return "cartesia" }

type cartesiaTranscriptionResponse struct {
	Text     string   `json:"text"`
	Language *string  `json:"language"`
	Duration *float64 `json:"duration"`
}

func (c *Cartesia) Transcribe(ctx context.Context, clip []byte, mimeType string) (*Transcript, error) {
	if err := checkInput(c.Name(), clip); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio"+audio.ExtensionFor(mimeType))
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: create form file")
	}
	if _, err := fw.Write(clip); err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: write audio data")
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: write model field")
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: write language field")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stt", &buf)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeServiceRequestInvalid, "cartesia: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstreamFailure(c.Name(), err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, wrenerr.New(wrenerr.CodeServiceTranscribeUpstreamFailure,
			fmt.Sprintf("cartesia: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			wrenerr.FieldProvider(c.Name()),
			wrenerr.Field("status", resp.StatusCode),
		)
	}

	var out cartesiaTranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, upstreamFailure(c.Name(), err, "decode response")
	}

	t := &Transcript{Text: strings.TrimSpace(out.Text)}
	if out.Language != nil {
		t.Language = *out.Language
	}
	if out.Duration != nil {
		t.Duration = time.Duration(*out.Duration * float64(time.Second))
	}
	return t, nil
}
