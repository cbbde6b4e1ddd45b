package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/awkwardescape/internal/config"
	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
	llmmock "github.com/MrWong99/awkwardescape/pkg/provider/llm/mock"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
	ttsmock "github.com/MrWong99/awkwardescape/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json

providers:
  llm:
    name: groq
    api_key: gsk-test
    model: llama-3.1-8b-instant
  llm_fallbacks:
    - name: ollama
      base_url: http://localhost:11434
  tts:
    name: elevenlabs
    api_key: el-test

audio:
  backend: headless
  headless_level_db: -55

settings:
  backend: sqlite
  path: /tmp/awkward.db

script:
  timeout: 5s
  temperature: 0.9

playback:
  rate: 1.1

voice_guard:
  variant: voice
  frames_required: 6

notify:
  delay: 3s
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server.log_format: got %q, want json", cfg.Server.LogFormat)
	}
	if cfg.Providers.LLM.Name != "groq" || cfg.Providers.LLM.APIKey != "gsk-test" {
		t.Errorf("providers.llm: got %+v", cfg.Providers.LLM)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Fatalf("providers.llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Audio.HeadlessLevelDB != -55 {
		t.Errorf("audio.headless_level_db: got %v, want -55", cfg.Audio.HeadlessLevelDB)
	}
	if cfg.Settings.Backend != config.SettingsSQLite || cfg.Settings.Path != "/tmp/awkward.db" {
		t.Errorf("settings: got %+v", cfg.Settings)
	}
	if cfg.Script.Timeout != 5*time.Second {
		t.Errorf("script.timeout: got %v, want 5s", cfg.Script.Timeout)
	}
	if cfg.Playback.Rate != 1.1 {
		t.Errorf("playback.rate: got %v, want 1.1", cfg.Playback.Rate)
	}
	if cfg.Playback.Pitch != config.DefaultPlaybackPitch {
		t.Errorf("playback.pitch: got %v, want default %v", cfg.Playback.Pitch, config.DefaultPlaybackPitch)
	}
	if cfg.VoiceGuard.Variant != "voice" || cfg.VoiceGuard.FramesRequired != 6 {
		t.Errorf("voice_guard: got %+v", cfg.VoiceGuard)
	}
	if cfg.Notify.Delay != 3*time.Second {
		t.Errorf("notify.delay: got %v, want 3s", cfg.Notify.Delay)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo || cfg.Server.LogFormat != config.LogFormatText {
		t.Errorf("logging defaults: got %q/%q", cfg.Server.LogLevel, cfg.Server.LogFormat)
	}
	if cfg.Audio.Backend != config.DefaultAudioBackend {
		t.Errorf("audio.backend: got %q", cfg.Audio.Backend)
	}
	if cfg.Settings.Backend != config.SettingsFile || cfg.Settings.Path != config.DefaultSettingsPath {
		t.Errorf("settings: got %+v", cfg.Settings)
	}
	if cfg.Playback.Rate != config.DefaultPlaybackRate {
		t.Errorf("playback.rate: got %v", cfg.Playback.Rate)
	}
	if cfg.VoiceGuard.Variant != "silence" || cfg.VoiceGuard.SampleEvery != config.DefaultSampleEvery {
		t.Errorf("voice_guard: got %+v", cfg.VoiceGuard)
	}
	if cfg.Notify.Delay != config.DefaultNotifyDelay {
		t.Errorf("notify.delay: got %v", cfg.Notify.Delay)
	}
}

func TestLoadFromReader_SQLiteDefaultPath(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("settings:\n  backend: sqlite\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Settings.Path != "data/settings.db" {
		t.Errorf("settings.path: got %q, want data/settings.db", cfg.Settings.Path)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("AWKWARD_TEST_KEY", "secret-key")
	path := t.TempDir() + "/config.yaml"
	writeFile(t, path, "providers:\n  llm:\n    name: groq\n    api_key: ${AWKWARD_TEST_KEY}\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "secret-key" {
		t.Errorf("api_key: got %q, want secret-key", cfg.Providers.LLM.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/awkwardescape.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		mention string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"log format", "server:\n  log_format: xml\n", "log_format"},
		{"tls half", "server:\n  tls:\n    cert_file: a.pem\n", "tls"},
		{"fallback without primary", "providers:\n  llm_fallbacks:\n    - name: ollama\n", "requires providers.llm"},
		{"fallback without name", "providers:\n  llm:\n    name: groq\n  llm_fallbacks:\n    - model: x\n", "llm_fallbacks[0].name"},
		{"settings backend", "settings:\n  backend: redis\n", "settings.backend"},
		{"postgres without dsn", "settings:\n  backend: postgres\n", "postgres_dsn"},
		{"temperature", "script:\n  temperature: 3\n", "temperature"},
		{"rate", "playback:\n  rate: 4\n", "playback.rate"},
		{"pitch", "playback:\n  pitch: 0.1\n", "playback.pitch"},
		{"variant", "voice_guard:\n  variant: loud\n", "variant"},
		{"negative delay", "notify:\n  delay: -1s\n", "notify.delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	yaml := `
server:
  log_level: loud
playback:
  rate: 9
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "playback.rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	for _, kind := range []string{"llm", "tts", "audio"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("llm: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("tts: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateAudio(config.AudioConfig{Backend: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("audio: expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredLLM(t *testing.T) {
	reg := config.NewRegistry()
	want := &llmmock.Provider{}
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredTTS(t *testing.T) {
	reg := config.NewRegistry()
	want := &ttsmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterTTS("stub", func(e config.ProviderEntry) (tts.Provider, error) {
		gotEntry = e
		return want, nil
	})
	got, err := reg.CreateTTS(config.ProviderEntry{Name: "stub", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
	if gotEntry.APIKey != "k" {
		t.Errorf("factory entry: got %+v", gotEntry)
	}
}

func TestRegistry_RegisteredAudio(t *testing.T) {
	reg := config.NewRegistry()
	var level float64
	reg.RegisterAudio("fake", func(cfg config.AudioConfig) (config.AudioPlatform, error) {
		return config.AudioPlatform{SetLevel: func(db float64) { level = db }}, nil
	})
	p, err := reg.CreateAudio(config.AudioConfig{Backend: "fake"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.SetLevel(audio.FloorDB)
	if level != audio.FloorDB {
		t.Errorf("SetLevel: got %v, want %v", level, audio.FloorDB)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(e config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterLLM("groq", nil)
	reg.RegisterLLM("anthropic", nil)
	names := reg.Names()
	if got := names["llm"]; len(got) != 2 || got[0] != "anthropic" || got[1] != "groq" {
		t.Errorf("Names()[llm]: got %v", got)
	}
	if got := names["tts"]; len(got) != 0 {
		t.Errorf("Names()[tts]: got %v", got)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-example")
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "gsk-example" || len(cfg.Providers.LLMFallbacks) != 1 {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Settings.Backend != config.SettingsFile || cfg.Notify.Delay != config.DefaultNotifyDelay {
		t.Errorf("settings %q, notify delay %v", cfg.Settings.Backend, cfg.Notify.Delay)
	}
}
