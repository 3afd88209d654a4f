// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/audio"
	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/server"
	"github.com/sigil-dev/wren/internal/store/memory"
	"github.com/sigil-dev/wren/internal/voice/stt"
	"github.com/sigil-dev/wren/internal/voice/tts"
)

const (
	owner     = "user-1"
	replyText = "That sounds hard. What happened?"
)

// cannedGenerator answers every mode with a fixed string, or fails.
type cannedGenerator struct {
	mu  sync.Mutex
	err error
}

func (g *cannedGenerator) Generate(_ context.Context, req agent.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	switch req.Mode {
	case agent.ModeSummarize:
		return "A short summary.", nil
	case agent.ModeNotes:
		return "- one\n- two\n- three\n- four\n- five", nil
	default:
		return replyText, nil
	}
}

func (g *cannedGenerator) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type staticHealth map[string]provider.HealthMetrics

func (h staticHealth) Health() map[string]provider.HealthMetrics { return h }

type testAPI struct {
	srv   *server.Server
	gen   *cannedGenerator
	audio *audio.MemoryStore
}

func newTestAPI(t *testing.T, mutate ...func(*server.Config)) *testAPI {
	t.Helper()

	st := memory.New()
	blobs := audio.NewMemoryStore()
	gen := &cannedGenerator{}

	orch, err := agent.NewTurnOrchestrator(agent.OrchestratorConfig{
		Sessions:    st.Sessions(),
		Journals:    st.Journals(),
		Audio:       blobs,
		Transcriber: &stt.Static{Text: "I had a rough day"},
		Generator:   gen,
		Synthesizer: &tts.Silent{},
		Context:     agent.NewContextBuilder(),
	})
	require.NoError(t, err)
	mgr, err := agent.NewManager(agent.ManagerConfig{
		Store:        st,
		Orchestrator: orch,
		Generator:    gen,
		Context:      agent.NewContextBuilder(),
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	svc, err := server.NewServices(mgr, agent.NewJournalService(st, orch), blobs,
		staticHealth{"google": {Available: true}})
	require.NoError(t, err)

	cfg := server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
		Version:    "test",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	return &testAPI{srv: srv, gen: gen, audio: blobs}
}

// do sends a request as owner (when non-empty) and decodes a JSON response
// into out (when non-nil).
func (a *testAPI) do(t *testing.T, method, path, as string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != "" {
		req.Header.Set(server.OwnerHeader, as)
	}
	w := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(w, req)

	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func (a *testAPI) startSession(t *testing.T) string {
	t.Helper()
	var sess server.SessionBody
	w := a.do(t, http.MethodPost, "/api/v1/sessions", owner, map[string]any{"system_prompt": "Be supportive"}, &sess)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return sess.ID
}

type problem struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Errors []struct {
		Location string `json:"location"`
		Value    any    `json:"value"`
	} `json:"errors"`
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problem {
	t.Helper()
	var p problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p), w.Body.String())
	return p
}

func (p problem) value(location string) any {
	for _, e := range p.Errors {
		if e.Location == location {
			return e.Value
		}
	}
	return nil
}
