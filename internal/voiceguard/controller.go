// Package voiceguard runs a timed listening session that starts a fake call
// on its own when the room goes quiet.
//
// A session samples the microphone for a configurable window. In the default
// silence variant a sustained quiet run ends the session and rings the
// selected persona. In the voice variant the session waits a short time for
// the user to speak; silence rings, speech cancels.
package voiceguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/awkwardescape/internal/mic"
	"github.com/MrWong99/awkwardescape/internal/observe"
	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

// ErrPermissionDenied is returned by [Controller.StartSession] when the
// microphone cannot be used.
var ErrPermissionDenied = errors.New("voiceguard: microphone permission denied")

const (
	// DefaultWindow is how long a session listens before giving up.
	DefaultWindow = 30 * time.Minute

	// DefaultTick is how often elapsed time is re-checked.
	DefaultTick = 250 * time.Millisecond
)

// Status messages shown to the user.
const (
	msgPermission = "Mic permission is required for voice detection."
	msgTimedOut   = "No silence detected. Start a new session to listen again."
	msgEnded      = "Session ended."
	msgNoPersona  = "Add a persona to continue."
	msgSilence    = "Silence detected. Starting call..."
	msgNoVoice    = "No voice detected. Starting call..."
	msgVoice      = "Voice detected. Call cancelled."
)

// Variant selects what a session listens for.
type Variant string

const (
	// VariantSilence rings after a sustained quiet run.
	VariantSilence Variant = "silence"

	// VariantVoice rings unless speech is heard before the detect timeout.
	VariantVoice Variant = "voice"
)

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeTriggered     Outcome = "triggered"
	OutcomeTimedOut      Outcome = "timed_out"
	OutcomeStopped       Outcome = "stopped"
	OutcomeVoiceDetected Outcome = "voice_detected"
)

// CallStarter rings a fake call. It is satisfied by *call.Controller.
type CallStarter interface {
	StartRinging(ctx context.Context, persona types.Persona, mode types.CallMode)
}

// PersonaSelector returns the persona a triggered call should use.
type PersonaSelector interface {
	SelectedPersona() (types.Persona, bool)
}

// StatusSink receives user-facing notes. It is satisfied by *status.Board.
type StatusSink interface {
	Set(msg string, ttl time.Duration)
}

// Params tunes one session. Zero fields take the package defaults. 0 dB is
// a valid threshold, so ThresholdDB is only defaulted when nil.
type Params struct {
	Window      time.Duration
	Silence     time.Duration
	ThresholdDB *float64
	Variant     Variant
}

// threshold returns the level below which a sample counts as quiet.
func (p Params) threshold() float64 {
	if p.ThresholdDB == nil {
		return mic.DefaultSilenceThresholdDB
	}
	return *p.ThresholdDB
}

func (p Params) withDefaults() Params {
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.Silence <= 0 {
		p.Silence = mic.DefaultSilenceDuration
	}
	if p.Variant == "" {
		p.Variant = VariantSilence
	}
	return p
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Active         bool
	Variant        Variant
	WindowTotal    time.Duration
	Elapsed        time.Duration
	SilenceElapsed time.Duration
	MeterDB        float64
	LastOutcome    Outcome
}

// Controller owns the voice-guard session.
//
// All methods are safe for concurrent use. Every sampler callback and tick
// carries the generation it was started with and is ignored once the session
// it belongs to has ended.
type Controller struct {
	sampler  *mic.Sampler
	calls    CallStarter
	personas PersonaSelector
	status   StatusSink
	now      func() time.Time
	tick     time.Duration
	metrics  *observe.Metrics

	detectTimeout  time.Duration
	framesRequired int

	mu             sync.Mutex
	gen            uint64
	starting       bool
	active         bool
	ctx            context.Context
	cancel         context.CancelFunc
	params         Params
	startedAt      time.Time
	elapsed        time.Duration
	silenceElapsed time.Duration
	meterDB        float64
	silence        *mic.SilenceDetector
	voice          *mic.VoiceDetector
	lastOutcome    Outcome
	wg             sync.WaitGroup
}

// Option configures a [Controller].
type Option func(*Controller)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTick overrides [DefaultTick].
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithVoiceDetection tunes the voice variant. Non-positive values keep the
// mic package defaults.
func WithVoiceDetection(timeout time.Duration, framesRequired int) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.detectTimeout = timeout
		}
		if framesRequired > 0 {
			c.framesRequired = framesRequired
		}
	}
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New returns an idle controller.
func New(sampler *mic.Sampler, calls CallStarter, personas PersonaSelector, status StatusSink, opts ...Option) *Controller {
	c := &Controller{
		sampler:        sampler,
		calls:          calls,
		personas:       personas,
		status:         status,
		now:            time.Now,
		tick:           DefaultTick,
		detectTimeout:  mic.DefaultVoiceTimeout,
		framesRequired: mic.DefaultFramesRequired,
		meterDB:        audio.FloorDB,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// StartSession begins listening. It is a no-op when a session is already
// active or starting, and returns [ErrPermissionDenied] when the microphone
// is unavailable.
func (c *Controller) StartSession(ctx context.Context, p Params) error {
	p = p.withDefaults()

	c.mu.Lock()
	if c.active || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.starting = true
	c.mu.Unlock()

	if !c.sampler.Start(ctx, c.onLevel(gen)) {
		c.mu.Lock()
		if c.gen == gen {
			c.starting = false
		}
		c.mu.Unlock()
		c.metrics.RecordPermissionDenied(ctx, "microphone")
		c.say(msgPermission)
		return ErrPermissionDenied
	}

	c.mu.Lock()
	if c.gen != gen {
		// EndSession ran while the platform was granting access.
		c.mu.Unlock()
		c.sampler.Stop()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.starting = false
	c.active = true
	c.ctx = runCtx
	c.cancel = cancel
	c.params = p
	c.startedAt = c.now()
	c.elapsed = 0
	c.silenceElapsed = 0
	c.meterDB = audio.FloorDB
	c.silence = mic.NewSilenceDetector(p.threshold(), p.Silence)
	c.voice = mic.NewVoiceDetector(p.threshold(), c.framesRequired)
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(runCtx, gen)

	c.metrics.ActiveVoiceGuard.Add(ctx, 1)
	slog.Info("voiceguard: session started", "variant", p.Variant, "window", p.Window,
		"threshold_db", p.threshold(), "silence", p.Silence)
	c.say(fmt.Sprintf("Session started (%g min).", p.Window.Minutes()))
	return nil
}

// EndSession stops listening without ringing. It reports whether a session
// was running.
func (c *Controller) EndSession() bool {
	return c.stop(msgEnded)
}

// Cancel ends the session like [Controller.EndSession] without posting a
// status note. It is used when the user starts a call by hand.
func (c *Controller) Cancel() bool {
	return c.stop("")
}

func (c *Controller) stop(msg string) bool {
	c.mu.Lock()
	if c.starting {
		c.gen++
		c.starting = false
		c.mu.Unlock()
		return true
	}
	gen := c.gen
	c.mu.Unlock()
	return c.end(gen, OutcomeStopped, msg)
}

// Active reports whether a session is listening.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{MeterDB: c.meterDB, LastOutcome: c.lastOutcome}
	if c.active {
		s.Active = true
		s.Variant = c.params.Variant
		s.WindowTotal = c.params.Window
		s.Elapsed = c.elapsed
		s.SilenceElapsed = c.silenceElapsed
	}
	return s
}

// Wait blocks until the tick goroutine of every ended session has returned.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) onLevel(gen uint64) mic.LevelFunc {
	return func(db float64) {
		now := c.now()
		c.mu.Lock()
		if c.gen != gen || !c.active {
			c.mu.Unlock()
			return
		}
		c.meterDB = db
		var silent, spoke bool
		switch c.params.Variant {
		case VariantVoice:
			spoke = c.voice.Observe(db)
		default:
			silent = c.silence.Observe(now, db)
			c.silenceElapsed = c.silence.Elapsed(now)
		}
		c.mu.Unlock()

		switch {
		case silent:
			c.trigger(gen, msgSilence)
		case spoke:
			c.end(gen, OutcomeVoiceDetected, msgVoice)
		}
	}
}

func (c *Controller) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if !c.advance(gen) {
			return
		}
	}
}

// advance updates elapsed time and reports whether the session goes on.
func (c *Controller) advance(gen uint64) bool {
	now := c.now()
	c.mu.Lock()
	if c.gen != gen || !c.active {
		c.mu.Unlock()
		return false
	}
	c.elapsed = now.Sub(c.startedAt)
	elapsed, p := c.elapsed, c.params
	c.mu.Unlock()

	switch {
	case elapsed >= p.Window:
		c.end(gen, OutcomeTimedOut, msgTimedOut)
		return false
	case p.Variant == VariantVoice && elapsed >= c.detectTimeout:
		c.trigger(gen, msgNoVoice)
		return false
	}
	return true
}

// trigger ends the session and rings the selected persona.
func (c *Controller) trigger(gen uint64, msg string) {
	c.mu.Lock()
	ctx := context.WithoutCancel(c.ctx)
	c.mu.Unlock()
	if !c.end(gen, OutcomeTriggered, "") {
		return
	}
	persona, ok := c.personas.SelectedPersona()
	if !ok {
		c.say(msgNoPersona)
		return
	}
	c.say(msg)
	c.calls.StartRinging(ctx, persona, types.ModeVoiceGuard)
}

// end finishes session gen. It reports false when gen is no longer the
// running session.
func (c *Controller) end(gen uint64, outcome Outcome, msg string) bool {
	c.mu.Lock()
	if c.gen != gen || !c.active {
		c.mu.Unlock()
		return false
	}
	c.gen++
	c.active = false
	c.elapsed = 0
	c.silenceElapsed = 0
	c.meterDB = audio.FloorDB
	c.lastOutcome = outcome
	ctx, cancel := c.ctx, c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.sampler.Stop()

	c.metrics.ActiveVoiceGuard.Add(ctx, -1)
	c.metrics.RecordVoiceGuardOutcome(ctx, string(outcome))
	slog.Info("voiceguard: session ended", "outcome", outcome)
	if msg != "" {
		c.say(msg)
	}
	return true
}

func (c *Controller) say(msg string) {
	if c.status != nil {
		c.status.Set(msg, 0)
	}
}
