package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/awkwardescape/internal/app"
	"github.com/MrWong99/awkwardescape/internal/config"
	"github.com/MrWong99/awkwardescape/internal/observe"
	"github.com/MrWong99/awkwardescape/internal/resilience"
	"github.com/MrWong99/awkwardescape/pkg/audio/desktop"
	"github.com/MrWong99/awkwardescape/pkg/audio/headless"
	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
	"github.com/MrWong99/awkwardescape/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/awkwardescape/pkg/provider/llm/openai"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires every provider and audio backend that ships
// with awkwardescape into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the Chat Completions API directly; every other backend
	// goes through any-llm-go.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllm.SupportedBackends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is a local server addressed by BaseURL only.
			if entry.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			if name == "groq" {
				return anyllm.NewGroq(entry.Model, opts...)
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if v := optString(entry.Options, "default_voice"); v != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(v))
		}
		if m := optStringMap(entry.Options, "voice_map"); len(m) > 0 {
			opts = append(opts, elevenlabs.WithVoiceMap(m))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("headless", func(cfg config.AudioConfig) (config.AudioPlatform, error) {
		devices, rec := headless.New(cfg.HeadlessLevelDB)
		return config.AudioPlatform{Devices: devices, SetLevel: rec.SetLevel}, nil
	})

	reg.RegisterAudio("desktop", func(cfg config.AudioConfig) (config.AudioPlatform, error) {
		var opts []desktop.Option
		if cfg.CaptureDevice != "" {
			opts = append(opts, desktop.WithCaptureDevice(cfg.CaptureDevice))
		}
		c, err := desktop.Open(opts...)
		if err != nil {
			return config.AudioPlatform{}, err
		}
		return config.AudioPlatform{
			Devices: desktop.New(c),
			Close: func() error {
				c.Close()
				return nil
			},
		}, nil
	})
}

// buildProviders instantiates the providers named in cfg. Configured LLM
// fallbacks are chained behind the primary, each with its own breaker.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}

	audio, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", cfg.Audio.Backend, err)
	}
	ps.Audio = audio
	slog.Info("audio backend opened", "backend", cfg.Audio.Backend)

	closeAudio := func() {
		if audio.Close != nil {
			_ = audio.Close()
		}
	}

	if entry := cfg.Providers.LLM; entry.Name != "" {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			closeAudio()
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
		ps.LLM = p

		if len(cfg.Providers.LLMFallbacks) > 0 {
			chain := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{
				CircuitBreaker: resilience.CircuitBreakerConfig{
					MaxFailures:  cfg.Script.Breaker.MaxFailures,
					ResetTimeout: cfg.Script.Breaker.ResetTimeout,
				},
				OnAttempt: func(provider string, err error) {
					status := "ok"
					if err != nil {
						status = "error"
					}
					metrics.RecordProviderRequest(context.Background(), provider, "llm", status)
				},
			})
			for _, fb := range cfg.Providers.LLMFallbacks {
				fp, err := reg.CreateLLM(fb)
				if errors.Is(err, config.ErrProviderNotRegistered) {
					slog.Warn("llm fallback not registered; skipping", "name", fb.Name)
					continue
				}
				if err != nil {
					closeAudio()
					return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
				}
				chain.AddFallback(fb.Name, fp)
			}
			slog.Info("llm fallback chain", "backends", chain.Backends())
			ps.LLM = chain
		}
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			closeAudio()
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		slog.Info("provider created", "kind", "tts", "name", entry.Name)
		ps.TTS = p
	}

	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStringMap extracts a string-to-string map from a provider Options map.
// Non-string values are skipped.
func optStringMap(opts map[string]any, key string) map[string]string {
	raw, ok := opts[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
