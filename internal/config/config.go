// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/wren/internal/secrets"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. WREN_SERVER_LISTEN.
const EnvPrefix = "WREN"

// Config is the top-level wren configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Audio     AudioConfig               `mapstructure:"audio"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    ModelsConfig              `mapstructure:"models"`
	Voice     VoiceConfig               `mapstructure:"voice"`
	Agent     AgentConfig               `mapstructure:"agent"`
	Telemetry TelemetryConfig           `mapstructure:"telemetry"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen        string          `mapstructure:"listen"`
	CORSOrigins   []string        `mapstructure:"cors_origins"`
	ReadTimeout   time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration   `mapstructure:"write_timeout"`
	MaxAudioBytes int64           `mapstructure:"max_audio_bytes"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig sets per-IP request limits. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// AudioConfig selects the audio blob backend.
type AudioConfig struct {
	Backend string   `mapstructure:"backend"`
	Dir     string   `mapstructure:"dir"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config configures S3-compatible object storage for audio.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// ProviderConfig holds credentials and endpoint for a language model provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls model selection for replies, summaries and notes.
type ModelsConfig struct {
	Default  string   `mapstructure:"default"`
	Failover []string `mapstructure:"failover"`
	// Overrides maps a generation mode (reply, summarize, notes) to a model.
	Overrides   map[string]string `mapstructure:"overrides"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	Temperature float64           `mapstructure:"temperature"`
}

// VoiceConfig selects the speech backends.
type VoiceConfig struct {
	STT SpeechConfig `mapstructure:"stt"`
	TTS SpeechConfig `mapstructure:"tts"`
}

// SpeechConfig configures one speech backend. Voice and SampleRate only
// apply to synthesis; Prompt and MockText only to transcription.
type SpeechConfig struct {
	Backend    string `mapstructure:"backend"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Language   string `mapstructure:"language"`
	Voice      string `mapstructure:"voice"`
	SampleRate int    `mapstructure:"sample_rate"`
	Prompt     string `mapstructure:"prompt"`
	MockText   string `mapstructure:"mock_text"`
}

// AgentConfig controls how the agent presents the conversation to the model.
type AgentConfig struct {
	UserLabel       string `mapstructure:"user_label"`
	AgentLabel      string `mapstructure:"agent_label"`
	ContextMaxChars int    `mapstructure:"context_max_chars"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig controls the default slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.max_audio_bytes", 10<<20)
	v.SetDefault("server.rate_limit.requests_per_second", 5)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "wren.db")
	v.SetDefault("audio.backend", "filesystem")
	v.SetDefault("audio.dir", "audio")
	v.SetDefault("models.default", "google/gemini-2.5-flash")
	v.SetDefault("models.max_tokens", 1024)
	v.SetDefault("models.temperature", 0.7)
	v.SetDefault("voice.stt.backend", "gemini")
	v.SetDefault("voice.stt.model", "gemini-2.5-flash")
	v.SetDefault("voice.tts.backend", "gemini")
	v.SetDefault("voice.tts.model", "gemini-2.5-flash-preview-tts")
	v.SetDefault("voice.tts.voice", "Kore")
	v.SetDefault("voice.tts.sample_rate", 24000)
	v.SetDefault("agent.user_label", "User")
	v.SetDefault("agent.agent_label", "Eve")
	v.SetDefault("agent.context_max_chars", 16000)
	v.SetDefault("telemetry.service_name", "wren")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// New returns a viper instance with defaults and WREN_ environment
// overrides installed.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path (or defaults only when path is empty)
// with environment overrides. Keyring URIs are left in place.
func Load(path string) (*Config, error) {
	return LoadWithSecrets(path, nil)
}

// LoadWithSecrets is Load with keyring:// values resolved through store.
// A nil store skips resolution.
func LoadWithSecrets(path string, store secrets.Store) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, wrenerr.Errorf(wrenerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	if store != nil {
		if err := secrets.ResolveViperSecrets(v, store); err != nil {
			return nil, err
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, wrenerr.Errorf(wrenerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, wrenerr.Errorf(wrenerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors and returns every
// problem found.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateAudio()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateVoice()...)
	errs = append(errs, c.validateLogging()...)
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, invalid("telemetry.sample_ratio must be between 0 and 1, got %g", c.Telemetry.SampleRatio))
	}
	return errs
}

func invalid(format string, args ...any) error {
	return wrenerr.Errorf(wrenerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func oneOf(key, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return invalid("%s must be one of [%s], got %q", key, strings.Join(allowed, ", "), value)
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
	} else if _, portStr, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil {
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	if c.Server.MaxAudioBytes <= 0 {
		errs = append(errs, invalid("server.max_audio_bytes must be greater than 0, got %d", c.Server.MaxAudioBytes))
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	if err := oneOf("storage.backend", c.Storage.Backend, "memory", "sqlite", "postgres"); err != nil {
		return append(errs, err)
	}
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, invalid("storage.path is required for the sqlite backend"))
		}
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, invalid("storage.dsn is required for the postgres backend"))
		}
	}
	return errs
}

func (c *Config) validateAudio() []error {
	var errs []error
	if err := oneOf("audio.backend", c.Audio.Backend, "memory", "filesystem", "s3"); err != nil {
		return append(errs, err)
	}
	switch c.Audio.Backend {
	case "filesystem":
		if c.Audio.Dir == "" {
			errs = append(errs, invalid("audio.dir is required for the filesystem backend"))
		}
	case "s3":
		if c.Audio.S3.Bucket == "" {
			errs = append(errs, invalid("audio.s3.bucket is required for the s3 backend"))
		}
		if (c.Audio.S3.AccessKeyID == "") != (c.Audio.S3.SecretAccessKey == "") {
			errs = append(errs, invalid("audio.s3.access_key_id and audio.s3.secret_access_key must be set together"))
		}
	}
	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	check := func(key, ref string) {
		if !strings.Contains(ref, "/") {
			errs = append(errs, invalid("%s must be in \"provider/model\" format, got %q", key, ref))
			return
		}
		// A nil map means no providers section at all, which is valid on a
		// fresh install where keys come from the keyring later.
		if c.Providers != nil {
			name := ProviderFromModel(ref)
			if _, ok := c.Providers[name]; !ok {
				errs = append(errs, invalid("%s %q references provider %q which is not configured", key, ref, name))
			}
		}
	}

	if c.Models.Default == "" {
		errs = append(errs, invalid("models.default must not be empty"))
	} else {
		check("models.default", c.Models.Default)
	}
	for i, ref := range c.Models.Failover {
		check("models.failover["+strconv.Itoa(i)+"]", ref)
	}
	for mode, ref := range c.Models.Overrides {
		if err := oneOf("models.overrides key", mode, "reply", "summarize", "notes"); err != nil {
			errs = append(errs, err)
			continue
		}
		check("models.overrides."+mode, ref)
	}

	if c.Models.MaxTokens < 0 {
		errs = append(errs, invalid("models.max_tokens must not be negative, got %d", c.Models.MaxTokens))
	}
	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		errs = append(errs, invalid("models.temperature must be between 0 and 2, got %g", c.Models.Temperature))
	}
	return errs
}

func (c *Config) validateVoice() []error {
	var errs []error
	if err := oneOf("voice.stt.backend", c.Voice.STT.Backend, "gemini", "cartesia", "mock"); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("voice.tts.backend", c.Voice.TTS.Backend, "gemini", "cartesia", "elevenlabs", "mock"); err != nil {
		errs = append(errs, err)
	}
	if c.Voice.TTS.SampleRate < 0 {
		errs = append(errs, invalid("voice.tts.sample_rate must not be negative, got %d", c.Voice.TTS.SampleRate))
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	if err := oneOf("logging.level", strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error"); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("logging.format", c.Logging.Format, "text", "json"); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// ProviderFromModel extracts the provider prefix from a "provider/model" string.
func ProviderFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
