// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/audio"
	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/store/memory"
	"github.com/sigil-dev/wren/internal/voice/stt"
	"github.com/sigil-dev/wren/internal/voice/tts"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const (
	testOwner   = "user-1"
	testReply   = "I'm sorry to hear that. Want to talk about it?"
	testSummary = "The user had a rough day at work and felt unheard."
	testNotes   = "- Take a short walk after work\n- Write down one good moment\n2. Call a friend\n* Sleep before midnight\n- Plan a quiet evening\n- Extra note beyond the limit"
)

var wavAudio = []byte("RIFF....WAVEfmt fake recording")

// mockTranscriber returns a fixed transcript or error.
type mockTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls atomic.Int32
}

func (m *mockTranscriber) Name() string { return "mock" }

func (m *mockTranscriber) Transcribe(ctx context.Context, data []byte, _ string) (*stt.Transcript, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &stt.Transcript{Text: m.text}, nil
}

func (m *mockTranscriber) set(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.err = err
}

// mockGenerator returns a canned response per mode and records requests.
type mockGenerator struct {
	mu       sync.Mutex
	replies  map[agent.Mode]string
	errs     map[agent.Mode]error
	block    map[agent.Mode]chan struct{}
	started  chan agent.Mode
	requests []agent.GenerateRequest
}

func newMockGenerator() *mockGenerator {
	return &mockGenerator{
		replies: map[agent.Mode]string{
			agent.ModeReply:     testReply,
			agent.ModeSummarize: testSummary,
			agent.ModeNotes:     testNotes,
		},
		errs:    map[agent.Mode]error{},
		block:   map[agent.Mode]chan struct{}{},
		started: make(chan agent.Mode, 16),
	}
}

func (g *mockGenerator) Generate(ctx context.Context, req agent.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	reply, err, gate := g.replies[req.Mode], g.errs[req.Mode], g.block[req.Mode]
	g.mu.Unlock()

	select {
	case g.started <- req.Mode:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (g *mockGenerator) set(mode agent.Mode, reply string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[mode] = reply
	g.errs[mode] = err
}

// hold makes generation in mode wait until the returned func is called.
func (g *mockGenerator) hold(mode agent.Mode) (release func()) {
	gate := make(chan struct{})
	g.mu.Lock()
	g.block[mode] = gate
	g.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (g *mockGenerator) requestsFor(mode agent.Mode) []agent.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []agent.GenerateRequest
	for _, r := range g.requests {
		if r.Mode == mode {
			out = append(out, r)
		}
	}
	return out
}

// mockSynthesizer returns a small WAV clip or a configured error.
type mockSynthesizer struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func (m *mockSynthesizer) Name() string { return "mock" }

func (m *mockSynthesizer) Synthesize(_ context.Context, text, voice string) (*tts.Synthesis, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if voice == "" {
		voice = "Kore"
	}
	return &tts.Synthesis{
		Audio:    tts.EncodeWAV(make([]byte, 2*len(text)), 24000),
		Duration: 1500 * time.Millisecond,
		Format:   "wav",
		Voice:    voice,
		MIMEType: "audio/wav",
	}, nil
}

func (m *mockSynthesizer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// failingAudioStore rejects every Put.
type failingAudioStore struct {
	audio.Store
}

func (failingAudioStore) Put(context.Context, []byte, audio.Hint) (audio.Locator, error) {
	return "", wrenerr.New(wrenerr.CodeAudioStoreFailure, "disk full")
}

type testEnv struct {
	store    *memory.Store
	audio    *audio.MemoryStore
	stt      *mockTranscriber
	gen      *mockGenerator
	tts      *mockSynthesizer
	orch     *agent.TurnOrchestrator
	mgr      *agent.Manager
	journals *agent.JournalService
}

func newTestEnv(t *testing.T, opts ...func(*agent.OrchestratorConfig)) *testEnv {
	t.Helper()

	env := &testEnv{
		store: memory.New(),
		audio: audio.NewMemoryStore(),
		stt:   &mockTranscriber{text: "I had a rough day"},
		gen:   newMockGenerator(),
		tts:   &mockSynthesizer{},
	}

	cfg := agent.OrchestratorConfig{
		Sessions:    env.store.Sessions(),
		Journals:    env.store.Journals(),
		Audio:       env.audio,
		Transcriber: env.stt,
		Generator:   env.gen,
		Synthesizer: env.tts,
		Context:     agent.NewContextBuilder(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	orch, err := agent.NewTurnOrchestrator(cfg)
	require.NoError(t, err)
	env.orch = orch

	mgr, err := agent.NewManager(agent.ManagerConfig{
		Store:        env.store,
		Orchestrator: orch,
		Generator:    env.gen,
		Context:      agent.NewContextBuilder(),
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	env.mgr = mgr

	env.journals = agent.NewJournalService(env.store, orch)
	return env
}

func (e *testEnv) start(t *testing.T, prompt string) string {
	t.Helper()
	sess, err := e.mgr.Start(context.Background(), testOwner, prompt)
	require.NoError(t, err)
	return sess.ID
}

func audioTurn() agent.TurnInput {
	return agent.TurnInput{Audio: wavAudio, MIMEType: "audio/wav"}
}

// scriptedProvider is a provider.Provider whose Chat output is scripted.
type scriptedProvider struct {
	name      string
	available bool
	events    []provider.ChatEvent
	chatErr   error
	failures  atomic.Int32
	requests  chan provider.ChatRequest
}

func newScriptedProvider(name string, events ...provider.ChatEvent) *scriptedProvider {
	return &scriptedProvider{
		name:      name,
		available: true,
		events:    events,
		requests:  make(chan provider.ChatRequest, 8),
	}
}

func (p *scriptedProvider) Name() string                   { return p.name }
func (p *scriptedProvider) Available(context.Context) bool { return p.available }
func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.requests <- req
	if p.chatErr != nil {
		return nil, p.chatErr
	}
	ch := make(chan provider.ChatEvent, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: p.available, Provider: p.name}, nil
}

func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) RecordFailure() { p.failures.Add(1) }
func (p *scriptedProvider) RecordSuccess() {}
func (p *scriptedProvider) HealthMetrics() provider.HealthMetrics {
	return provider.HealthMetrics{}
}
