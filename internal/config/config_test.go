// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/sigil-dev/wren/internal/config"
	"github.com/sigil-dev/wren/internal/secrets"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wren.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxAudioBytes)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "filesystem", cfg.Audio.Backend)
	assert.Equal(t, "google/gemini-2.5-flash", cfg.Models.Default)
	assert.Equal(t, "gemini", cfg.Voice.STT.Backend)
	assert.Equal(t, "Kore", cfg.Voice.TTS.Voice)
	assert.Equal(t, "Eve", cfg.Agent.AgentLabel)
	assert.Equal(t, 16000, cfg.Agent.ContextMaxChars)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "0.0.0.0:9999"
storage:
  backend: postgres
  dsn: "postgres://wren@localhost/wren"
audio:
  backend: s3
  s3:
    bucket: wren-audio
    endpoint: "http://localhost:9000"
    use_path_style: true
providers:
  anthropic:
    api_key: "sk-ant-test"
models:
  default: "anthropic/claude-sonnet-4-5"
  overrides:
    summarize: "anthropic/claude-haiku-4-5"
voice:
  tts:
    backend: elevenlabs
    voice: Rachel
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "wren-audio", cfg.Audio.S3.Bucket)
	assert.True(t, cfg.Audio.S3.UsePathStyle)
	assert.Equal(t, "sk-ant-test", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, "anthropic/claude-haiku-4-5", cfg.Models.Overrides["summarize"])
	assert.Equal(t, "elevenlabs", cfg.Voice.TTS.Backend)
	assert.Equal(t, "Rachel", cfg.Voice.TTS.Voice)
}

func TestLoad_DefaultFileIsValid(t *testing.T) {
	path := writeConfig(t, string(config.DefaultConfigYAML))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "keyring://wren/google-api-key", cfg.Providers["google"].APIKey)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WREN_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("WREN_STORAGE_BACKEND", "memory")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_ResolvesKeyringSecrets(t *testing.T) {
	keyring.MockInit()
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("wren", "google-api-key", "AIza-from-keyring"))

	path := writeConfig(t, `
providers:
  google:
    api_key: "keyring://wren/google-api-key"
voice:
  tts:
    api_key: "keyring://wren/google-api-key"
`)
	cfg, err := config.LoadWithSecrets(path, ks)
	require.NoError(t, err)
	assert.Equal(t, "AIza-from-keyring", cfg.Providers["google"].APIKey)
	assert.Equal(t, "AIza-from-keyring", cfg.Voice.TTS.APIKey)

	path = writeConfig(t, "providers:\n  google:\n    api_key: \"keyring://wren/missing\"\n")
	_, err = config.LoadWithSecrets(path, ks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.google.api_key")
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, wrenerr.HasCode(err, wrenerr.CodeConfigLoadReadFailure))

	path := writeConfig(t, "storage:\n  backend: mongo\nlogging:\n  format: xml\n")
	_, err = config.Load(path)
	require.Error(t, err)
	assert.True(t, wrenerr.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "storage.backend")
	assert.Contains(t, err.Error(), "logging.format", "every problem is reported")
}

// validConfig returns a config that passes validation.
func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Listen:        "127.0.0.1:18790",
			MaxAudioBytes: 1 << 20,
			RateLimit:     config.RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		},
		Storage:   config.StorageConfig{Backend: "sqlite", Path: "wren.db"},
		Audio:     config.AudioConfig{Backend: "filesystem", Dir: "audio"},
		Providers: map[string]config.ProviderConfig{"google": {APIKey: "k"}},
		Models:    config.ModelsConfig{Default: "google/gemini-2.5-flash", MaxTokens: 512, Temperature: 0.7},
		Voice: config.VoiceConfig{
			STT: config.SpeechConfig{Backend: "gemini"},
			TTS: config.SpeechConfig{Backend: "gemini"},
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantKey string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"empty listen", func(c *config.Config) { c.Server.Listen = "" }, "server.listen"},
		{"missing port", func(c *config.Config) { c.Server.Listen = "127.0.0.1" }, "server.listen"},
		{"port zero", func(c *config.Config) { c.Server.Listen = "127.0.0.1:0" }, "server.listen"},
		{"port too high", func(c *config.Config) { c.Server.Listen = "127.0.0.1:70000" }, "server.listen"},
		{"ipv6 ok", func(c *config.Config) { c.Server.Listen = "[::1]:8080" }, ""},
		{"audio limit", func(c *config.Config) { c.Server.MaxAudioBytes = 0 }, "server.max_audio_bytes"},
		{"burst without rate", func(c *config.Config) { c.Server.RateLimit.Burst = 0 }, "server.rate_limit.burst"},
		{"rate limit off", func(c *config.Config) { c.Server.RateLimit = config.RateLimitConfig{} }, ""},
		{"unknown storage", func(c *config.Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"sqlite without path", func(c *config.Config) { c.Storage.Path = "" }, "storage.path"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Backend = "postgres" }, "storage.dsn"},
		{"memory storage", func(c *config.Config) { c.Storage = config.StorageConfig{Backend: "memory"} }, ""},
		{"unknown audio", func(c *config.Config) { c.Audio.Backend = "ftp" }, "audio.backend"},
		{"s3 without bucket", func(c *config.Config) { c.Audio.Backend = "s3" }, "audio.s3.bucket"},
		{"s3 half credentials", func(c *config.Config) {
			c.Audio = config.AudioConfig{Backend: "s3", S3: config.S3Config{Bucket: "b", AccessKeyID: "id"}}
		}, "audio.s3.access_key_id"},
		{"model without provider", func(c *config.Config) { c.Models.Default = "gemini" }, "models.default"},
		{"unconfigured provider", func(c *config.Config) { c.Models.Default = "anthropic/claude" }, "not configured"},
		{"no providers section", func(c *config.Config) {
			c.Providers = nil
			c.Models.Default = "anthropic/claude"
		}, ""},
		{"bad failover", func(c *config.Config) { c.Models.Failover = []string{"nope"} }, "models.failover[0]"},
		{"unknown override mode", func(c *config.Config) {
			c.Models.Overrides = map[string]string{"chat": "google/gemini-2.5-flash"}
		}, "models.overrides"},
		{"temperature", func(c *config.Config) { c.Models.Temperature = 3 }, "models.temperature"},
		{"unknown stt", func(c *config.Config) { c.Voice.STT.Backend = "whisper" }, "voice.stt.backend"},
		{"unknown tts", func(c *config.Config) { c.Voice.TTS.Backend = "polly" }, "voice.tts.backend"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"sample ratio", func(c *config.Config) { c.Telemetry.SampleRatio = 1.5 }, "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantKey == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			var msgs []string
			for _, err := range errs {
				assert.True(t, wrenerr.HasCode(err, wrenerr.CodeConfigValidateInvalidValue))
				msgs = append(msgs, err.Error())
			}
			assert.Contains(t, strings.Join(msgs, "\n"), tt.wantKey)
		})
	}
}

func TestBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wren.yaml")

	written, err := config.Bootstrap(path)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, data)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("# mine\n"), 0o600))
	written, err = config.Bootstrap(path)
	require.NoError(t, err)
	assert.False(t, written, "an existing file is never overwritten")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# mine\n", string(data))
}

func TestProviderFromModel(t *testing.T) {
	assert.Equal(t, "google", config.ProviderFromModel("google/gemini-2.5-flash"))
	assert.Equal(t, "openrouter", config.ProviderFromModel("openrouter/meta-llama/llama-3"))
	assert.Equal(t, "bare", config.ProviderFromModel("bare"))
}
