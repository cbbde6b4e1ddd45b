// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the awkwardescape server.
package config

import "time"

// LogLevel controls log verbosity for the awkwardescape server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// SettingsBackend selects where user settings are persisted.
type SettingsBackend string

const (
	SettingsMemory   SettingsBackend = "memory"
	SettingsFile     SettingsBackend = "file"
	SettingsSQLite   SettingsBackend = "sqlite"
	SettingsPostgres SettingsBackend = "postgres"
)

// IsValid reports whether b is a recognised settings backend.
func (b SettingsBackend) IsValid() bool {
	switch b {
	case SettingsMemory, SettingsFile, SettingsSQLite, SettingsPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for awkwardescape.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	Settings   SettingsConfig   `yaml:"settings"`
	Script     ScriptConfig     `yaml:"script"`
	Playback   PlaybackConfig   `yaml:"playback"`
	VoiceGuard VoiceGuardConfig `yaml:"voice_guard"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// ServerConfig holds network and logging settings for the HTTP control API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8787").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the remote providers. Each entry selects a named
// provider registered in the [Registry]; an empty name disables it.
type ProvidersConfig struct {
	// LLM writes call scripts and messages. Without it every script comes
	// from the offline templates.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when LLM fails or its breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// TTS renders caller lines. Without it the device synthesizer speaks.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Use ${VAR} to read it from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig selects the device backend.
type AudioConfig struct {
	// Backend is a registered audio platform name: "headless" or "desktop".
	Backend string `yaml:"backend"`

	// CaptureDevice is the hex device id for the desktop backend.
	CaptureDevice string `yaml:"capture_device"`

	// HeadlessLevelDB is the constant microphone level the headless backend
	// reports until changed through the API.
	HeadlessLevelDB float64 `yaml:"headless_level_db"`
}

// SettingsConfig selects the user-settings store.
type SettingsConfig struct {
	Backend SettingsBackend `yaml:"backend"`

	// Path is the directory for the file backend or the database file for
	// the sqlite backend.
	Path string `yaml:"path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ScriptConfig tunes remote script generation.
type ScriptConfig struct {
	// Timeout bounds one remote generation before the offline fallback.
	Timeout time.Duration `yaml:"timeout"`

	// Temperature is the sampling temperature sent to the LLM.
	Temperature float64 `yaml:"temperature"`

	// Breaker guards the LLM providers.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// PlaybackConfig tunes narration. It is hot-reloadable.
type PlaybackConfig struct {
	Rate  float64 `yaml:"rate"`
	Pitch float64 `yaml:"pitch"`
}

// VoiceGuardConfig tunes microphone sampling and the voice-guard session.
// The window, silence and threshold come from user settings.
type VoiceGuardConfig struct {
	// Variant is "silence" (default) or "voice".
	Variant string `yaml:"variant"`

	// SampleEvery is the microphone poll interval.
	SampleEvery time.Duration `yaml:"sample_every"`

	// Tick is how often the session clock is re-checked.
	Tick time.Duration `yaml:"tick"`

	// DetectTimeout is how long the voice variant waits for speech.
	DetectTimeout time.Duration `yaml:"detect_timeout"`

	// FramesRequired is how many loud samples count as speech.
	FramesRequired int `yaml:"frames_required"`
}

// NotifyConfig tunes silent-message mode. It is hot-reloadable.
type NotifyConfig struct {
	// Delay is the gap between the trigger and the fake message.
	Delay time.Duration `yaml:"delay"`
}
