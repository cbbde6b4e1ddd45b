// Package app wires the awkwardescape subsystems into a running service.
//
// The App owns the full lifecycle: New opens the settings store and builds
// the call, voice-guard, playback and notification controllers; the trigger
// methods (Ring, Escape, SendMessage, StartVoiceGuard) coordinate them;
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSettingsStore,
// WithNotifyBackend, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/awkwardescape/internal/call"
	"github.com/MrWong99/awkwardescape/internal/config"
	"github.com/MrWong99/awkwardescape/internal/mic"
	"github.com/MrWong99/awkwardescape/internal/notify"
	"github.com/MrWong99/awkwardescape/internal/observe"
	"github.com/MrWong99/awkwardescape/internal/playback"
	"github.com/MrWong99/awkwardescape/internal/resilience"
	"github.com/MrWong99/awkwardescape/internal/script"
	"github.com/MrWong99/awkwardescape/internal/settings"
	"github.com/MrWong99/awkwardescape/internal/status"
	"github.com/MrWong99/awkwardescape/internal/voiceguard"
	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

var (
	// ErrNoPersona is returned by triggers when no persona is stored.
	ErrNoPersona = errors.New("app: no persona available")

	// ErrMicBusy is returned by MicCheck while a call or a voice-guard
	// session holds the microphone.
	ErrMicBusy = errors.New("app: microphone in use")

	// ErrNoMicrophone is returned when the audio backend has no recorder.
	ErrNoMicrophone = errors.New("app: audio backend has no microphone")
)

// Providers holds the remote providers and the opened audio platform. Nil
// providers are not configured. Populated by main.go via the config
// registry.
type Providers struct {
	LLM   llm.Provider
	TTS   tts.Provider
	Audio config.AudioPlatform
}

// App owns all subsystem lifetimes and coordinates the triggers.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	settings *settings.Store
	board    *status.Board
	sampler  *mic.Sampler
	scripts  *script.Generator
	player   *playback.Engine
	calls    *call.Controller
	guard    *voiceguard.Controller
	messages *notify.Service
	notifier notify.Backend
	inbox    *notify.Inbox

	mu          sync.Mutex
	playCancel  context.CancelFunc
	notifyDelay time.Duration
	wg          sync.WaitGroup

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSettingsStore injects a settings store instead of opening the
// configured backend. Shutdown does not close an injected store.
func WithSettingsStore(s *settings.Store) Option {
	return func(a *App) { a.settings = s }
}

// WithNotifyBackend injects the notification platform instead of the
// in-process [notify.Inbox].
func WithNotifyBackend(b notify.Backend) Option {
	return func(a *App) { a.notifier = b }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go; providers.Audio must carry a recorder.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:         cfg,
		providers:   providers,
		notifyDelay: cfg.Notify.Delay,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	devices := providers.Audio.Devices
	if devices.Recorder == nil {
		return nil, ErrNoMicrophone
	}

	// ── 1. Settings ──────────────────────────────────────────────────────
	if err := a.initSettings(ctx); err != nil {
		return nil, fmt.Errorf("app: init settings: %w", err)
	}

	// ── 2. Microphone, status, notifications ─────────────────────────────
	a.board = status.NewBoard()
	a.sampler = mic.NewSampler(devices.Recorder, mic.WithSampleEvery(cfg.VoiceGuard.SampleEvery))
	a.initNotify()

	// ── 3. Scripts + playback ────────────────────────────────────────────
	a.scripts = script.NewGenerator(a.scriptOptions()...)
	playOpts := []playback.Option{
		playback.WithSynthesizer(devices.Synthesizer),
		playback.WithSpeech(cfg.Playback.Rate, cfg.Playback.Pitch),
		playback.WithMetrics(a.metrics),
	}
	if providers.TTS != nil {
		playOpts = append(playOpts, playback.WithTTS(providers.TTS, devices.Player))
	}
	a.player = playback.New(playOpts...)

	// ── 4. Call + voice guard ────────────────────────────────────────────
	a.calls = call.New(devices, a.sampler, a.scripts, a.settings, call.WithMetrics(a.metrics))
	a.guard = voiceguard.New(a.sampler, ringer{a}, a.settings, a.board,
		voiceguard.WithTick(cfg.VoiceGuard.Tick),
		voiceguard.WithVoiceDetection(cfg.VoiceGuard.DetectTimeout, cfg.VoiceGuard.FramesRequired),
		voiceguard.WithMetrics(a.metrics),
	)

	if providers.Audio.Close != nil {
		a.closers = append(a.closers, providers.Audio.Close)
	}
	slog.Info("app: ready",
		"llm", providers.LLM != nil,
		"tts", providers.TTS != nil,
		"audio", cfg.Audio.Backend,
		"settings", cfg.Settings.Backend,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initSettings(ctx context.Context) error {
	if a.settings != nil {
		return nil
	}
	backend, err := openSettingsBackend(ctx, a.cfg.Settings)
	if err != nil {
		return err
	}
	store, err := settings.Open(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return err
	}
	a.settings = store
	a.closers = append(a.closers, store.Close)
	return nil
}

func openSettingsBackend(ctx context.Context, cfg config.SettingsConfig) (settings.Backend, error) {
	switch cfg.Backend {
	case config.SettingsMemory:
		return settings.NewMemoryBackend(), nil
	case config.SettingsFile:
		b, err := settings.NewFileBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.SettingsSQLite:
		b, err := settings.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.SettingsPostgres:
		b, err := settings.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
}

func (a *App) initNotify() {
	if a.notifier == nil {
		a.inbox = notify.NewInbox()
		a.notifier = a.inbox
		a.closers = append(a.closers, func() error {
			a.inbox.Close()
			return nil
		})
	}
	a.messages = notify.NewService(a.notifier, notify.WithMetrics(a.metrics))
}

func (a *App) scriptOptions() []script.Option {
	sc := a.cfg.Script
	opts := []script.Option{
		script.WithTimeout(sc.Timeout),
		script.WithTemperature(sc.Temperature),
		script.WithMetrics(a.metrics),
	}
	p := a.providers.LLM
	if p == nil {
		return opts
	}
	opts = append(opts, script.WithLLM(p))
	// A fallback chain carries one breaker per backend already.
	if _, chained := p.(*resilience.LLMFallback); !chained {
		opts = append(opts, script.WithBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "llm",
			MaxFailures:  sc.Breaker.MaxFailures,
			ResetTimeout: sc.Breaker.ResetTimeout,
		})))
	}
	return opts
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run blocks until ctx is cancelled. Calls and voice-guard sessions started
// through the App keep running on their own goroutines.
func (a *App) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Shutdown ends any call and voice-guard session, waits for their goroutines
// and runs the closers in order. It respects the context deadline: if ctx
// expires first, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.guard.Cancel()
		a.stopPlayback()
		a.calls.EndCall(ctx)

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			a.guard.Wait()
			a.calls.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded waiting for controllers")
			shutdownErr = ctx.Err()
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ApplyConfig applies the hot-reloadable parts of a changed config file and
// logs the sections that need a restart. It is the config watcher callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.PlaybackChanged {
		a.player.SetSpeech(d.NewPlayback.Rate, d.NewPlayback.Pitch)
		slog.Info("app: playback speech updated", "rate", d.NewPlayback.Rate, "pitch", d.NewPlayback.Pitch)
	}
	if d.NotifyChanged {
		a.mu.Lock()
		a.notifyDelay = d.NewNotify.Delay
		a.mu.Unlock()
		slog.Info("app: message delay updated", "delay", d.NewNotify.Delay)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart", "sections", d.RestartRequired)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Settings returns the settings store.
func (a *App) Settings() *settings.Store { return a.settings }

// Call returns the current call state.
func (a *App) Call() call.Session { return a.calls.Snapshot() }

// OnCallChange subscribes fn to call state changes.
func (a *App) OnCallChange(fn func(call.Session)) (unsubscribe func()) {
	return a.calls.OnChange(fn)
}

// VoiceGuard returns the voice-guard session view.
func (a *App) VoiceGuard() voiceguard.Snapshot { return a.guard.Snapshot() }

// Status returns the visible status note, if any.
func (a *App) Status() (status.Note, bool) { return a.board.Current() }

// MicLevel returns the last smoothed microphone level.
func (a *App) MicLevel() float64 { return a.sampler.Level() }

// Messages returns the delivered fake messages. It is empty when an external
// notification backend is injected.
func (a *App) Messages() []notify.Message {
	if a.inbox == nil {
		return []notify.Message{}
	}
	return a.inbox.Messages()
}

// SetSimulatedLevel changes the microphone level on backends without real
// hardware. It reports false on hardware backends.
func (a *App) SetSimulatedLevel(db float64) bool {
	if a.providers.Audio.SetLevel == nil {
		return false
	}
	a.providers.Audio.SetLevel(db)
	return true
}

// persona resolves id, or the selected persona when id is empty.
func (a *App) persona(id string) (types.Persona, error) {
	if id == "" {
		p, ok := a.settings.SelectedPersona()
		if !ok {
			return types.Persona{}, ErrNoPersona
		}
		return p, nil
	}
	p, ok := a.settings.State().Persona(id)
	if !ok {
		return types.Persona{}, settings.ErrPersonaNotFound
	}
	return p, nil
}

// ringer lets the voice guard ring through the App so any playback of a
// superseded call is silenced first.
type ringer struct{ a *App }

var _ voiceguard.CallStarter = ringer{}

func (r ringer) StartRinging(ctx context.Context, persona types.Persona, mode types.CallMode) {
	r.a.stopPlayback()
	r.a.calls.StartRinging(ctx, persona, mode)
}
