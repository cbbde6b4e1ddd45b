package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":   {"elevenlabs"},
	"audio": {"headless", "desktop"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = "127.0.0.1:8787"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultAudioBackend    = "headless"
	DefaultHeadlessLevelDB = -30.0
	DefaultSettingsPath    = "data"
	DefaultScriptTimeout   = 8 * time.Second
	DefaultTemperature     = 0.7
	DefaultMaxFailures     = 3
	DefaultResetTimeout    = 30 * time.Second
	DefaultPlaybackRate    = 0.95
	DefaultPlaybackPitch   = 1.0
	DefaultSampleEvery     = 200 * time.Millisecond
	DefaultTick            = 250 * time.Millisecond
	DefaultDetectTimeout   = 7 * time.Second
	DefaultFramesRequired  = 4
	DefaultNotifyDelay     = 2 * time.Second
)

// Load reads the YAML configuration file at path, expands ${VAR}
// references from the environment and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. It does not expand environment references.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogFormatText
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = DefaultAudioBackend
	}
	if cfg.Audio.HeadlessLevelDB == 0 {
		cfg.Audio.HeadlessLevelDB = DefaultHeadlessLevelDB
	}

	st := &cfg.Settings
	if st.Backend == "" {
		st.Backend = SettingsFile
	}
	if st.Path == "" && (st.Backend == SettingsFile || st.Backend == SettingsSQLite) {
		st.Path = DefaultSettingsPath
		if st.Backend == SettingsSQLite {
			st.Path = DefaultSettingsPath + "/settings.db"
		}
	}

	sc := &cfg.Script
	if sc.Timeout == 0 {
		sc.Timeout = DefaultScriptTimeout
	}
	if sc.Temperature == 0 {
		sc.Temperature = DefaultTemperature
	}
	if sc.Breaker.MaxFailures == 0 {
		sc.Breaker.MaxFailures = DefaultMaxFailures
	}
	if sc.Breaker.ResetTimeout == 0 {
		sc.Breaker.ResetTimeout = DefaultResetTimeout
	}

	if cfg.Playback.Rate == 0 {
		cfg.Playback.Rate = DefaultPlaybackRate
	}
	if cfg.Playback.Pitch == 0 {
		cfg.Playback.Pitch = DefaultPlaybackPitch
	}

	vg := &cfg.VoiceGuard
	if vg.Variant == "" {
		vg.Variant = "silence"
	}
	if vg.SampleEvery == 0 {
		vg.SampleEvery = DefaultSampleEvery
	}
	if vg.Tick == 0 {
		vg.Tick = DefaultTick
	}
	if vg.DetectTimeout == 0 {
		vg.DetectTimeout = DefaultDetectTimeout
	}
	if vg.FramesRequired == 0 {
		vg.FramesRequired = DefaultFramesRequired
	}

	if cfg.Notify.Delay == 0 {
		cfg.Notify.Delay = DefaultNotifyDelay
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("audio", cfg.Audio.Backend)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm_fallbacks requires providers.llm"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; scripts will come from the offline templates")
	}

	// Settings
	switch st := cfg.Settings; {
	case !st.Backend.IsValid():
		errs = append(errs, fmt.Errorf("settings.backend %q is invalid; valid values: memory, file, sqlite, postgres", st.Backend))
	case st.Backend == SettingsPostgres && st.PostgresDSN == "":
		errs = append(errs, fmt.Errorf("settings.postgres_dsn is required when backend is postgres"))
	case (st.Backend == SettingsFile || st.Backend == SettingsSQLite) && st.Path == "":
		errs = append(errs, fmt.Errorf("settings.path is required when backend is %s", st.Backend))
	}

	// Script
	if cfg.Script.Timeout < 0 {
		errs = append(errs, fmt.Errorf("script.timeout must not be negative"))
	}
	if t := cfg.Script.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("script.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Script.Breaker.MaxFailures < 0 || cfg.Script.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("script.breaker values must not be negative"))
	}

	// Playback
	if r := cfg.Playback.Rate; r < 0.5 || r > 2.0 {
		errs = append(errs, fmt.Errorf("playback.rate %.2f is out of range [0.5, 2.0]", r))
	}
	if p := cfg.Playback.Pitch; p < 0.5 || p > 2.0 {
		errs = append(errs, fmt.Errorf("playback.pitch %.2f is out of range [0.5, 2.0]", p))
	}

	// Voice guard
	vg := cfg.VoiceGuard
	if vg.Variant != "silence" && vg.Variant != "voice" {
		errs = append(errs, fmt.Errorf("voice_guard.variant %q is invalid; valid values: silence, voice", vg.Variant))
	}
	if vg.SampleEvery < 0 || vg.Tick < 0 || vg.DetectTimeout < 0 {
		errs = append(errs, fmt.Errorf("voice_guard intervals must not be negative"))
	}
	if vg.FramesRequired < 0 {
		errs = append(errs, fmt.Errorf("voice_guard.frames_required must not be negative"))
	}

	if cfg.Notify.Delay < 0 {
		errs = append(errs, fmt.Errorf("notify.delay must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
