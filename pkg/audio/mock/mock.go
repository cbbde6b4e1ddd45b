// Package mock provides in-memory implementations of the [audio] device
// interfaces for unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose exported fields that control
// return values.
//
// Typical usage:
//
//	rec := &mock.Recorder{Permission: true}
//	rec.SetLevel(-55)
//	player := &mock.Player{}
//	devices := audio.Devices{Recorder: rec, Player: player}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/awkwardescape/pkg/audio"
)

// ─── Recorder ────────────────────────────────────────────────────────────────

// Recorder is a mock [audio.Recorder]. Its level is shared by every
// recording it hands out so tests can drive metering with [Recorder.SetLevel].
type Recorder struct {
	mu sync.Mutex

	// Permission is returned by RequestPermission.
	Permission bool

	// PermissionErr is returned by RequestPermission.
	PermissionErr error

	// StartErr is returned by StartMetering.
	StartErr error

	level float64
	set   bool

	PermissionCalls int
	StartCalls      int
	Recordings      []*Recording
}

var _ audio.Recorder = (*Recorder)(nil)

// SetLevel changes the level reported by all recordings.
func (r *Recorder) SetLevel(db float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = db
	r.set = true
}

func (r *Recorder) currentLevel() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		return audio.FloorDB
	}
	return r.level
}

// RequestPermission implements [audio.Recorder].
func (r *Recorder) RequestPermission(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PermissionCalls++
	return r.Permission, r.PermissionErr
}

// StartMetering implements [audio.Recorder].
func (r *Recorder) StartMetering(_ context.Context) (audio.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCalls++
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	rec := &Recording{parent: r}
	r.Recordings = append(r.Recordings, rec)
	return rec, nil
}

// Active returns the number of recordings that have not been stopped.
func (r *Recorder) Active() int {
	r.mu.Lock()
	recs := append([]*Recording(nil), r.Recordings...)
	r.mu.Unlock()
	n := 0
	for _, rec := range recs {
		if !rec.Stopped() {
			n++
		}
	}
	return n
}

// Recording is the handle returned by [Recorder.StartMetering].
type Recording struct {
	parent *Recorder

	mu        sync.Mutex
	stopped   bool
	StopCalls int
}

var _ audio.Recording = (*Recording)(nil)

// Level implements [audio.Recording]. A stopped recording reports the floor.
func (r *Recording) Level() float64 {
	if r.Stopped() {
		return audio.FloorDB
	}
	return r.parent.currentLevel()
}

// Stop implements [audio.Recording].
func (r *Recording) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopCalls++
	r.stopped = true
	return nil
}

// Stopped reports whether Stop has been called.
func (r *Recording) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// ─── Player ──────────────────────────────────────────────────────────────────

// PlayCall records a single [Player.Play] invocation.
type PlayCall struct {
	Clip     audio.Clip
	Opts     audio.PlayOptions
	Playback *Playback
}

// Player is a mock [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play.
	PlayErr error

	// Hold keeps non-looping playbacks open until stopped or finished via
	// [Playback.Finish]. When false they complete immediately.
	Hold bool

	Calls []PlayCall
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, clip audio.Clip, opts audio.PlayOptions) (audio.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	pb := &Playback{done: make(chan struct{})}
	p.Calls = append(p.Calls, PlayCall{Clip: clip, Opts: opts, Playback: pb})
	if !opts.Loop && !p.Hold {
		pb.Finish()
	}
	return pb, nil
}

// PlayCalls returns a copy of the recorded calls.
func (p *Player) PlayCalls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.Calls...)
}

// Playing returns the playbacks that are still running.
func (p *Player) Playing() []*Playback {
	var out []*Playback
	for _, c := range p.PlayCalls() {
		if !c.Playback.Finished() {
			out = append(out, c.Playback)
		}
	}
	return out
}

// Playback is the handle returned by [Player.Play].
type Playback struct {
	once      sync.Once
	done      chan struct{}
	mu        sync.Mutex
	StopCalls int
}

var _ audio.Playback = (*Playback)(nil)

// Done implements [audio.Playback].
func (p *Playback) Done() <-chan struct{} { return p.done }

// Stop implements [audio.Playback].
func (p *Playback) Stop() error {
	p.mu.Lock()
	p.StopCalls++
	p.mu.Unlock()
	p.Finish()
	return nil
}

// Finish closes Done as if the clip reached its end.
func (p *Playback) Finish() { p.once.Do(func() { close(p.done) }) }

// Finished reports whether Done is closed.
func (p *Playback) Finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ─── Router ──────────────────────────────────────────────────────────────────

// Router is a mock [audio.Router].
type Router struct {
	mu sync.Mutex

	// Err is returned by SetMode.
	Err error

	Modes []audio.Mode
}

var _ audio.Router = (*Router)(nil)

// SetMode implements [audio.Router].
func (r *Router) SetMode(_ context.Context, mode audio.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Modes = append(r.Modes, mode)
	return r.Err
}

// Last returns the most recent mode, or the zero Mode.
func (r *Router) Last() audio.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Modes) == 0 {
		return audio.Mode{}
	}
	return r.Modes[len(r.Modes)-1]
}

// ─── Vibrator ────────────────────────────────────────────────────────────────

// VibrateCall records a single [Vibrator.Vibrate] invocation.
type VibrateCall struct {
	Pattern []time.Duration
	Repeat  bool
}

// Vibrator is a mock [audio.Vibrator].
type Vibrator struct {
	mu sync.Mutex

	Calls       []VibrateCall
	CancelCalls int
	active      bool
}

var _ audio.Vibrator = (*Vibrator)(nil)

// Vibrate implements [audio.Vibrator].
func (v *Vibrator) Vibrate(pattern []time.Duration, repeat bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Calls = append(v.Calls, VibrateCall{Pattern: append([]time.Duration(nil), pattern...), Repeat: repeat})
	v.active = repeat
	return nil
}

// Cancel implements [audio.Vibrator].
func (v *Vibrator) Cancel() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CancelCalls++
	v.active = false
	return nil
}

// Active reports whether a repeating pattern is running.
func (v *Vibrator) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// ─── Synthesizer ─────────────────────────────────────────────────────────────

// SpeakCall records a single [Synthesizer.Speak] invocation.
type SpeakCall struct {
	Text string
	Opts audio.SpeechOptions
}

// Synthesizer is a mock [audio.Synthesizer].
type Synthesizer struct {
	mu sync.Mutex

	// SpeakErr is returned by Speak.
	SpeakErr error

	// Hold blocks Speak until Stop is called or ctx is cancelled.
	Hold bool

	Calls     []SpeakCall
	StopCalls int

	stop chan struct{}
}

var _ audio.Synthesizer = (*Synthesizer)(nil)

// Speak implements [audio.Synthesizer].
func (s *Synthesizer) Speak(ctx context.Context, text string, opts audio.SpeechOptions) error {
	s.mu.Lock()
	s.Calls = append(s.Calls, SpeakCall{Text: text, Opts: opts})
	if s.SpeakErr != nil || !s.Hold {
		err := s.SpeakErr
		s.mu.Unlock()
		return err
	}
	if s.stop == nil {
		s.stop = make(chan struct{})
	}
	stop := s.stop
	s.mu.Unlock()

	select {
	case <-stop:
	case <-ctx.Done():
	}
	return nil
}

// Stop implements [audio.Synthesizer].
func (s *Synthesizer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

// SpeakCalls returns a copy of the recorded calls.
func (s *Synthesizer) SpeakCalls() []SpeakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpeakCall(nil), s.Calls...)
}

// Stops returns how many times Stop was called.
func (s *Synthesizer) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCalls
}

// Reset clears all recorded calls.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
	s.StopCalls = 0
}
