// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const (
	elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	defaultElevenLabsModel  = "eleven_flash_v2_5"
	defaultElevenLabsVoice  = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsWriteTimeout  = 5 * time.Second
)

// ElevenLabs synthesizes over the ElevenLabs stream-input websocket, asking
// for raw PCM and collecting every chunk until the final message.
type ElevenLabs struct {
	apiKey       string
	wsBaseURL    string
	model        string
	defaultVoice string
	sampleRate   int
	dialer       *websocket.Dialer
}

// NewElevenLabs creates an ElevenLabs synthesizer. BaseURL overrides the
// websocket endpoint and may contain a {voice_id} placeholder.
func NewElevenLabs(cfg Config) (*ElevenLabs, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, wrenerr.New(wrenerr.CodeProviderRequestInvalid, "elevenlabs tts: missing api_key in config", wrenerr.FieldProvider("elevenlabs"))
	}
	e := &ElevenLabs{
		apiKey:       apiKey,
		wsBaseURL:    strings.TrimSpace(cfg.BaseURL),
		model:        cfg.Model,
		defaultVoice: pick(cfg.DefaultVoice, defaultElevenLabsVoice),
		sampleRate:   cfg.SampleRate,
		dialer:       websocket.DefaultDialer,
	}
	if e.wsBaseURL == "" {
		e.wsBaseURL = elevenLabsDefaultWSBase
	}
	if e.model == "" {
		e.model = defaultElevenLabsModel
	}
	if e.sampleRate <= 0 {
		e.sampleRate = defaultSampleRate
	}
	return e, nil
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type elevenLabsMessage struct {
	Audio      *string `json:"audio"`
	IsFinal    *bool   `json:"isFinal"`
	IsFinalAlt *bool   `json:"is_final"`
	Error      string  `json:"error"`
	Message    string  `json:"message"`
}

func (m elevenLabsMessage) final() bool {
	return (m.IsFinal != nil && *m.IsFinal) || (m.IsFinalAlt != nil && *m.IsFinalAlt)
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice string) (*Synthesis, error) {
	if err := checkInput(e.Name(), text); err != nil {
		return nil, err
	}
	voice = pick(voice, e.defaultVoice)

	wsURL, err := e.streamURL(voice)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, upstreamFailure(e.Name(), err, "dial websocket")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	text = strings.TrimSpace(text) + " "
	for _, payload := range []map[string]any{
		{"text": " "},
		{"text": text, "flush": true},
		{"text": ""},
	} {
		_ = conn.SetWriteDeadline(time.Now().Add(elevenLabsWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			return nil, e.streamErr(ctx, err, "send text")
		}
	}

	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			return nil, e.streamErr(ctx, err, "read audio")
		}
		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, wrenerr.New(wrenerr.CodeServiceSynthesizeUpstreamFailure,
				fmt.Sprintf("elevenlabs: %s: %s", msg.Error, msg.Message),
				wrenerr.FieldProvider(e.Name()),
			)
		}
		if msg.Audio != nil && *msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(*msg.Audio)
			if err != nil {
				return nil, upstreamFailure(e.Name(), err, "decode audio chunk")
			}
			pcm = append(pcm, chunk...)
		}
		if msg.final() {
			break
		}
	}

	if len(pcm) == 0 {
		return nil, wrenerr.New(wrenerr.CodeServiceSynthesizeUpstreamFailure,
			"elevenlabs: stream carried no audio",
			wrenerr.FieldProvider(e.Name()),
		)
	}

	return &Synthesis{
		Audio:    EncodeWAV(pcm, e.sampleRate),
		Duration: PCMDuration(len(pcm), e.sampleRate),
		Format:   "wav",
		Voice:    voice,
		MIMEType: "audio/wav",
	}, nil
}

// streamErr prefers the context error once the context is done, since
// closing the connection surfaces as a generic network error.
func (e *ElevenLabs) streamErr(ctx context.Context, err error, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return upstreamFailure(e.Name(), err, msg)
}

func (e *ElevenLabs) streamURL(voice string) (string, error) {
	base := strings.ReplaceAll(e.wsBaseURL, "{voice_id}", url.PathEscape(voice))
	u, err := url.Parse(base)
	if err != nil {
		return "", wrenerr.Wrapf(err, wrenerr.CodeConfigValidateInvalidValue, "elevenlabs: invalid websocket url")
	}
	switch u.Scheme {
	case "":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(voice) + "/stream-input"
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", e.model)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", "pcm_"+strconv.Itoa(e.sampleRate))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
