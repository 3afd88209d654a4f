// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/audio"
	_ "github.com/sigil-dev/wren/internal/audio/s3" // register s3 backend
	"github.com/sigil-dev/wren/internal/config"
	"github.com/sigil-dev/wren/internal/provider"
	anthropicprov "github.com/sigil-dev/wren/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/wren/internal/provider/google"
	openaiprov "github.com/sigil-dev/wren/internal/provider/openai"
	openrouterprov "github.com/sigil-dev/wren/internal/provider/openrouter"
	"github.com/sigil-dev/wren/internal/server"
	"github.com/sigil-dev/wren/internal/store"
	_ "github.com/sigil-dev/wren/internal/store/memory"   // register memory backend
	_ "github.com/sigil-dev/wren/internal/store/postgres" // register postgres backend
	_ "github.com/sigil-dev/wren/internal/store/sqlite"   // register sqlite backend
	"github.com/sigil-dev/wren/internal/telemetry"
	"github.com/sigil-dev/wren/internal/voice/stt"
	"github.com/sigil-dev/wren/internal/voice/tts"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server    *server.Server
	Store     store.Store
	Audio     audio.Store
	Providers *provider.Registry
	Sessions  *agent.Manager
	Journals  *agent.JournalService
	Telemetry *telemetry.Providers
}

// Wire creates every subsystem and connects them. dataDir anchors relative
// storage and audio paths.
func Wire(ctx context.Context, cfg *config.Config, dataDir string) (_ *App, err error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, wrenerr.Errorf(wrenerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	// 1. Telemetry. Without an endpoint spans and metrics stay in process.
	app.Telemetry, err = telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, err
	}
	app.Telemetry.SetGlobal()
	instruments, err := telemetry.NewInstruments(app.Telemetry.Meter(telemetry.InstrumentationName))
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "creating instruments")
	}
	tracer := app.Telemetry.Tracer(telemetry.InstrumentationName)

	// 2. Sessions, messages and journals.
	app.Store, err = store.Open(storageConfig(cfg.Storage, dataDir))
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}

	// 3. Recordings and synthesized replies.
	app.Audio, err = audio.Open(audioConfig(cfg.Audio, dataDir))
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "opening %s audio store", cfg.Audio.Backend)
	}

	// 4. Model providers and routing.
	app.Providers = provider.NewRegistry()
	registerBuiltinProviders(cfg, app.Providers)
	if err := routeModels(cfg.Models, app.Providers); err != nil {
		return nil, err
	}

	// 5. Speech.
	transcriber, err := stt.New(ctx, sttConfig(cfg))
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "creating %s transcriber", cfg.Voice.STT.Backend)
	}
	synthesizer, err := tts.New(ctx, ttsConfig(cfg))
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "creating %s synthesizer", cfg.Voice.TTS.Backend)
	}

	// 6. Turn engine and lifecycle.
	contextBuilder := agent.ContextBuilder{
		UserLabel:  cfg.Agent.UserLabel,
		AgentLabel: cfg.Agent.AgentLabel,
		MaxChars:   cfg.Agent.ContextMaxChars,
	}
	temperature := float32(cfg.Models.Temperature)
	generator := agent.NewProviderGenerator(app.Providers, agent.ProviderGeneratorConfig{
		MaxTokens:   cfg.Models.MaxTokens,
		Temperature: &temperature,
	})

	orchestrator, err := agent.NewTurnOrchestrator(agent.OrchestratorConfig{
		Sessions:    app.Store.Sessions(),
		Journals:    app.Store.Journals(),
		Audio:       app.Audio,
		Transcriber: transcriber,
		Generator:   generator,
		Synthesizer: synthesizer,
		Context:     contextBuilder,
		Voice:       cfg.Voice.TTS.Voice,
		Tracer:      tracer,
		Instruments: instruments,
	})
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "creating turn orchestrator")
	}

	app.Sessions, err = agent.NewManager(agent.ManagerConfig{
		Store:        app.Store,
		Orchestrator: orchestrator,
		Generator:    generator,
		Context:      contextBuilder,
		Tracer:       tracer,
		Instruments:  instruments,
	})
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "creating session manager")
	}
	app.Journals = agent.NewJournalService(app.Store, orchestrator)

	// 7. HTTP API.
	services, err := server.NewServices(app.Sessions, app.Journals, app.Audio, app.Providers)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "creating services")
	}
	app.Server, err = server.New(server.Config{
		ListenAddr:    cfg.Server.Listen,
		CORSOrigins:   cfg.Server.CORSOrigins,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		MaxAudioBytes: cfg.Server.MaxAudioBytes,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Services: services,
		Version:  version,
	})
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "creating server")
	}

	return app, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases all resources held by the app. The session manager is
// closed before the store so queued turns drain first.
func (a *App) Close() error {
	var errs []error
	if a.Server != nil {
		errs = append(errs, a.Server.Close())
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Providers != nil {
		errs = append(errs, a.Providers.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}

func storageConfig(cfg config.StorageConfig, dataDir string) *store.StorageConfig {
	return &store.StorageConfig{
		Backend: cfg.Backend,
		Path:    underDataDir(dataDir, cfg.Path),
		DSN:     cfg.DSN,
	}
}

func audioConfig(cfg config.AudioConfig, dataDir string) *audio.Config {
	return &audio.Config{
		Backend: cfg.Backend,
		Dir:     underDataDir(dataDir, cfg.Dir),
		S3: audio.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		},
	}
}

// underDataDir resolves a relative path against dataDir.
func underDataDir(dataDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dataDir, path)
}

// speechKey falls back to the google provider key for Gemini speech.
func speechKey(cfg *config.Config, sc config.SpeechConfig) string {
	if sc.APIKey != "" {
		return sc.APIKey
	}
	if sc.Backend == "" || sc.Backend == "gemini" {
		return cfg.Providers[string(provider.ProviderGoogle)].APIKey
	}
	return ""
}

func sttConfig(cfg *config.Config) stt.Config {
	sc := cfg.Voice.STT
	return stt.Config{
		Backend:  sc.Backend,
		Model:    sc.Model,
		APIKey:   speechKey(cfg, sc),
		BaseURL:  sc.BaseURL,
		Language: sc.Language,
		Prompt:   sc.Prompt,
		MockText: sc.MockText,
	}
}

func ttsConfig(cfg *config.Config) tts.Config {
	sc := cfg.Voice.TTS
	return tts.Config{
		Backend:      sc.Backend,
		Model:        sc.Model,
		APIKey:       speechKey(cfg, sc),
		BaseURL:      sc.BaseURL,
		DefaultVoice: sc.Voice,
		Language:     sc.Language,
		SampleRate:   sc.SampleRate,
	}
}

// routeModels installs the default model, failover chain and per-mode
// overrides.
func routeModels(cfg config.ModelsConfig, reg *provider.Registry) error {
	if cfg.Default != "" {
		if err := reg.SetDefault(cfg.Default); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure,
				"setting default model %s (is the %s api key stored?)", cfg.Default, config.ProviderFromModel(cfg.Default))
		}
	}
	if len(cfg.Failover) > 0 {
		if err := reg.SetFailover(cfg.Failover); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "setting failover chain")
		}
	}

	modes := make([]string, 0, len(cfg.Overrides))
	for mode := range cfg.Overrides {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	for _, mode := range modes {
		if err := reg.SetOverride(mode, cfg.Overrides[mode]); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeCLISetupFailure, "setting %s model override", mode)
		}
	}
	return nil
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openrouter": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openrouterprov.New(openrouterprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint, AppName: "wren"})
	},
}

// registerBuiltinProviders registers every configured provider with a
// matching built-in implementation. Unknown names and empty keys are logged
// and skipped.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		slog.Info("registered provider", "provider", name)
	}
}
