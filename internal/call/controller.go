// Package call implements the fake call lifecycle:
//
//	idle -> ringing -> answered -> ended -> idle
//
// The [Controller] owns the ringtone, the vibration motor, audio routing and
// the microphone meter for the duration of a call, and fills the call's
// script in the background while it rings.
package call

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/awkwardescape/internal/mic"
	"github.com/MrWong99/awkwardescape/internal/observe"
	"github.com/MrWong99/awkwardescape/internal/script"
	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

// VibrationPattern is the ringing pattern: no delay, 800ms buzz, 600ms rest.
var VibrationPattern = []time.Duration{0, 800 * time.Millisecond, 600 * time.Millisecond}

var (
	ringingMode  = audio.Mode{PlaysInSilentMode: true}
	answeredMode = audio.Mode{PlaysInSilentMode: true, AllowsRecording: true}
)

// ScriptGenerator produces the dialog for a call. It must always return a
// usable script.
type ScriptGenerator interface {
	GenerateCallScript(ctx context.Context, persona types.Persona, mode types.CallMode, seed string) []types.ScriptTurn
}

// PersonaSource exposes the stored personas for answer-time resolution.
type PersonaSource interface {
	// SelectedPersona returns the persona chosen in settings, if any.
	SelectedPersona() (types.Persona, bool)

	// Personas returns every stored persona in display order.
	Personas() []types.Persona
}

// Controller is the call lifecycle state machine.
//
// All methods are safe for concurrent use. Device calls are made without
// holding the state lock; state changes that depend on them are applied only
// if the session generation is unchanged.
type Controller struct {
	devices  audio.Devices
	sampler  *mic.Sampler
	scripts  ScriptGenerator
	personas PersonaSource
	ringtone audio.Clip
	now      func() time.Time
	newSeed  func() string
	metrics  *observe.Metrics

	mu        sync.Mutex
	state     Session
	ring      audio.Playback
	listeners map[int]func(Session)
	nextID    int
	wg        sync.WaitGroup
}

// Option configures a [Controller].
type Option func(*Controller)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRingtone replaces the generated [audio.Ringtone].
func WithRingtone(clip audio.Clip) Option {
	return func(c *Controller) { c.ringtone = clip }
}

// WithSeeds overrides [script.NewSeed].
func WithSeeds(next func() string) Option {
	return func(c *Controller) { c.newSeed = next }
}

// WithMetrics records call metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a [Controller] in the idle state. Nil fields of devices are
// skipped; sampler may be nil when the host has no microphone.
func New(devices audio.Devices, sampler *mic.Sampler, scripts ScriptGenerator, personas PersonaSource, opts ...Option) *Controller {
	c := &Controller{
		devices:   devices,
		sampler:   sampler,
		scripts:   scripts,
		personas:  personas,
		now:       time.Now,
		newSeed:   script.NewSeed,
		state:     blank(types.StatusIdle, 0),
		listeners: make(map[int]func(Session)),
	}
	for _, o := range opts {
		o(c)
	}
	if c.ringtone.PCM == nil {
		c.ringtone = audio.Ringtone()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// StartRinging starts a new incoming call from persona, superseding any call
// in progress. It plays the looping ringtone, starts vibrating and begins
// generating the script in the background.
func (c *Controller) StartRinging(ctx context.Context, persona types.Persona, mode types.CallMode) {
	c.stopRinging()
	if c.sampler != nil {
		c.sampler.Stop()
	}
	c.setMode(ctx, ringingMode)

	var pb audio.Playback
	if c.devices.Player != nil {
		var err error
		pb, err = c.devices.Player.Play(ctx, c.ringtone, audio.PlayOptions{Loop: true})
		if err != nil {
			slog.Warn("call: ringtone failed", "err", err)
		}
	}
	if c.devices.Vibrator != nil {
		if err := c.devices.Vibrator.Vibrate(VibrationPattern, true); err != nil {
			slog.Warn("call: vibration failed", "err", err)
		}
	}

	c.mu.Lock()
	wasActive := c.state.Active()
	prevRing := c.ring
	c.ring = pb
	gen := c.state.Generation + 1
	c.state = blank(types.StatusRinging, gen)
	c.state.Mode = mode
	c.state.Persona = &persona
	c.mu.Unlock()

	if prevRing != nil {
		stopPlayback(prevRing)
	}
	if !wasActive {
		c.metrics.ActiveCalls.Add(ctx, 1)
	}
	c.metrics.RecordCallTransition(ctx, "ring", string(mode))
	slog.Info("call: ringing", "persona", persona.DisplayName, "mode", mode, "generation", gen)
	c.notify()

	seed := c.newSeed()
	genCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		turns := c.scripts.GenerateCallScript(genCtx, persona, mode, seed)
		c.mu.Lock()
		st := c.state
		usable := st.Generation == gen &&
			(st.Status == types.StatusRinging || (st.Status == types.StatusAnswered && len(st.Script) == 0))
		if !usable {
			c.mu.Unlock()
			slog.Debug("call: discarding script for superseded call", "generation", gen)
			return
		}
		c.state.Script = turns
		c.state.Teleprompter = script.BuildTeleprompterText(turns)
		c.mu.Unlock()
		c.notify()
	}()
}

// AnswerCall stops ringing and connects the call. The persona is override
// when given, else the ringing call's persona, else the settings selection,
// else the first stored persona. With no persona at all the controller
// returns to idle and AnswerCall reports false.
//
// Microphone access is attempted for the level indicator; a denial leaves the
// level at [audio.FloorDB] and the call proceeds.
func (c *Controller) AnswerCall(ctx context.Context, override *types.Persona) bool {
	c.stopRinging()

	c.mu.Lock()
	gen := c.state.Generation
	session := c.state.clone()
	c.mu.Unlock()

	persona, ok := c.resolvePersona(override, session.Persona)
	if !ok {
		c.mu.Lock()
		if c.state.Generation != gen {
			c.mu.Unlock()
			return false
		}
		wasActive := c.state.Active()
		c.state = blank(types.StatusIdle, gen+1)
		c.mu.Unlock()
		if wasActive {
			c.metrics.ActiveCalls.Add(ctx, -1)
		}
		slog.Warn("call: no persona to answer with, returning to idle")
		c.notify()
		return false
	}

	mode := session.Mode
	if mode == "" {
		mode = types.ModeInstantCall
	}
	turns := session.Script
	if len(turns) == 0 {
		turns = c.scripts.GenerateCallScript(ctx, persona, mode, c.newSeed())
	}

	c.setMode(ctx, answeredMode)

	c.mu.Lock()
	if c.state.Generation != gen {
		c.mu.Unlock()
		slog.Debug("call: answer superseded", "generation", gen)
		return false
	}
	// The background generation may have landed while we generated our own.
	if len(c.state.Script) > 0 && c.state.Status == types.StatusRinging {
		turns = c.state.Script
	}
	wasActive := c.state.Active()
	c.state = Session{
		Status:       types.StatusAnswered,
		Mode:         mode,
		Persona:      &persona,
		Script:       turns,
		Teleprompter: script.BuildTeleprompterText(turns),
		StartedAt:    c.now(),
		MicLevel:     audio.FloorDB,
		SpeakerOn:    true,
		Generation:   gen,
	}
	c.mu.Unlock()

	c.startMetering(ctx, gen)

	if !wasActive {
		c.metrics.ActiveCalls.Add(ctx, 1)
	}
	c.metrics.RecordCallTransition(ctx, "answer", string(mode))
	slog.Info("call: answered", "persona", persona.DisplayName, "turns", len(turns), "generation", gen)
	c.notify()
	return true
}

// Decline rejects a ringing call without answering it. It reports false when
// nothing was ringing.
func (c *Controller) Decline(ctx context.Context) bool {
	return c.finish(ctx, "decline", func(s types.CallStatus) bool { return s == types.StatusRinging })
}

// EndCall hangs up a ringing or answered call, releasing the ringtone, the
// vibration motor and the microphone. From idle or ended it does nothing and
// reports false.
func (c *Controller) EndCall(ctx context.Context) bool {
	return c.finish(ctx, "end", func(s types.CallStatus) bool {
		return s == types.StatusRinging || s == types.StatusAnswered
	})
}

func (c *Controller) finish(ctx context.Context, event string, allowed func(types.CallStatus) bool) bool {
	c.mu.Lock()
	if !allowed(c.state.Status) {
		c.mu.Unlock()
		return false
	}
	prev := c.state
	c.state = blank(types.StatusEnded, prev.Generation+1)
	ring := c.ring
	c.ring = nil
	c.mu.Unlock()

	if ring != nil {
		stopPlayback(ring)
	}
	c.cancelVibration()
	if c.sampler != nil {
		c.sampler.Stop()
	}

	c.metrics.ActiveCalls.Add(ctx, -1)
	c.metrics.RecordCallTransition(ctx, event, string(prev.Mode))
	if prev.Status == types.StatusAnswered {
		c.metrics.CallDuration.Record(ctx, c.now().Sub(prev.StartedAt).Seconds())
	}
	slog.Info("call: "+event, "from", prev.Status, "generation", prev.Generation+1)
	c.notify()
	return true
}

// ToggleMute flips the mute state of an answered call and returns the new
// value. Muting releases the microphone and pins the level to the floor;
// unmuting restarts metering.
func (c *Controller) ToggleMute(ctx context.Context) bool {
	c.mu.Lock()
	if c.state.Status != types.StatusAnswered {
		muted := c.state.Muted
		c.mu.Unlock()
		return muted
	}
	gen := c.state.Generation
	next := !c.state.Muted
	c.state.Muted = next
	if next {
		c.state.MicLevel = audio.FloorDB
	}
	c.mu.Unlock()

	if next {
		if c.sampler != nil {
			c.sampler.Stop()
		}
	} else {
		c.startMetering(ctx, gen)
	}
	c.notify()
	return next
}

// ToggleSpeaker switches an answered call between speaker and earpiece and
// returns whether the speaker is now on. The call status is unchanged.
func (c *Controller) ToggleSpeaker(ctx context.Context) bool {
	c.mu.Lock()
	if c.state.Status != types.StatusAnswered {
		on := c.state.SpeakerOn
		c.mu.Unlock()
		return on
	}
	next := !c.state.SpeakerOn
	c.state.SpeakerOn = next
	c.mu.Unlock()

	mode := answeredMode
	mode.Earpiece = !next
	c.setMode(ctx, mode)
	c.notify()
	return next
}

// ResetCall clears the in-memory state back to idle. It does not touch the
// ringtone or the microphone; release those with [Controller.EndCall].
func (c *Controller) ResetCall() {
	c.mu.Lock()
	wasActive := c.state.Active()
	c.state = blank(types.StatusIdle, c.state.Generation+1)
	c.mu.Unlock()
	if wasActive {
		c.metrics.ActiveCalls.Add(context.Background(), -1)
	}
	c.notify()
}

// SetActiveLineIndex moves the teleprompter cursor of the current call.
// Out-of-range indices are ignored.
func (c *Controller) SetActiveLineIndex(i int) {
	c.mu.Lock()
	gen := c.state.Generation
	c.mu.Unlock()
	c.SetActiveLineIndexAt(gen, i)
}

// SetActiveLineIndexAt moves the cursor only if the call is still at
// generation gen. It reports whether the cursor moved.
func (c *Controller) SetActiveLineIndexAt(gen uint64, i int) bool {
	c.mu.Lock()
	if c.state.Generation != gen || i < 0 || i >= len(c.state.Script) {
		c.mu.Unlock()
		return false
	}
	c.state.ActiveLine = i
	c.mu.Unlock()
	c.notify()
	return true
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.state.clone()
	if snap.Status == types.StatusAnswered && !snap.StartedAt.IsZero() {
		snap.ElapsedMs = c.now().Sub(snap.StartedAt).Milliseconds()
	}
	return snap
}

// OnChange registers fn to receive a snapshot after every state change and
// returns a function that unregisters it. fn runs on the goroutine that made
// the change and must not block.
func (c *Controller) OnChange(fn func(Session)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Wait blocks until background script generations have finished.
func (c *Controller) Wait() { c.wg.Wait() }

// notify delivers the current state, not the state at the time of the
// change, so a late notification never rolls an observer back.
func (c *Controller) notify() {
	c.mu.Lock()
	snap := c.state.clone()
	fns := make([]func(Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) resolvePersona(override, session *types.Persona) (types.Persona, bool) {
	if override != nil {
		return *override, true
	}
	if session != nil {
		return *session, true
	}
	if c.personas == nil {
		return types.Persona{}, false
	}
	if p, ok := c.personas.SelectedPersona(); ok {
		return p, true
	}
	if all := c.personas.Personas(); len(all) > 0 {
		return all[0], true
	}
	return types.Persona{}, false
}

func (c *Controller) startMetering(ctx context.Context, gen uint64) {
	if c.sampler == nil {
		return
	}
	ok := c.sampler.Start(ctx, func(float64) {
		level := c.sampler.Level()
		c.mu.Lock()
		if c.state.Generation == gen && !c.state.Muted {
			c.state.MicLevel = level
		}
		c.mu.Unlock()
	})
	if !ok {
		c.metrics.RecordPermissionDenied(ctx, "microphone")
		slog.Info("call: microphone unavailable, level indicator disabled")
	}
}

func (c *Controller) stopRinging() {
	c.mu.Lock()
	ring := c.ring
	c.ring = nil
	c.mu.Unlock()
	if ring != nil {
		stopPlayback(ring)
	}
	c.cancelVibration()
}

func (c *Controller) cancelVibration() {
	if c.devices.Vibrator == nil {
		return
	}
	if err := c.devices.Vibrator.Cancel(); err != nil {
		slog.Debug("call: cancel vibration", "err", err)
	}
}

func (c *Controller) setMode(ctx context.Context, mode audio.Mode) {
	if c.devices.Router == nil {
		return
	}
	if err := c.devices.Router.SetMode(ctx, mode); err != nil {
		slog.Warn("call: audio routing failed", "err", err)
	}
}

func stopPlayback(pb audio.Playback) {
	if err := pb.Stop(); err != nil {
		slog.Debug("call: stop ringtone", "err", err)
	}
}
