// Package headless implements the [audio] device interfaces without any audio
// hardware. Playback takes as long as the clip would take to play, metering
// reports a settable constant level, and routing and vibration are logged.
//
// It is the default platform for servers and CI where no sound card exists.
package headless

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/awkwardescape/pkg/audio"
)

// New returns a [audio.Devices] bundle backed by headless implementations.
// level is the microphone reading reported by recordings.
func New(level float64) (audio.Devices, *Recorder) {
	rec := NewRecorder(level)
	return audio.Devices{
		Recorder: rec,
		Player:   Player{},
		Router:   Router{},
		Vibrator: &Vibrator{},
	}, rec
}

// Recorder is a microphone that always grants permission and reports a
// fixed level until changed with [Recorder.SetLevel].
type Recorder struct {
	level atomic.Uint64
}

var _ audio.Recorder = (*Recorder)(nil)

// NewRecorder returns a Recorder reporting level dBFS.
func NewRecorder(level float64) *Recorder {
	r := &Recorder{}
	r.SetLevel(level)
	return r
}

// SetLevel changes the simulated microphone level.
func (r *Recorder) SetLevel(db float64) { r.level.Store(math.Float64bits(db)) }

// RequestPermission implements [audio.Recorder]. Always granted.
func (r *Recorder) RequestPermission(context.Context) (bool, error) { return true, nil }

// StartMetering implements [audio.Recorder].
func (r *Recorder) StartMetering(context.Context) (audio.Recording, error) {
	return &recording{src: r}, nil
}

type recording struct {
	src     *Recorder
	stopped atomic.Bool
}

func (r *recording) Level() float64 {
	if r.stopped.Load() {
		return audio.FloorDB
	}
	return math.Float64frombits(r.src.level.Load())
}

func (r *recording) Stop() error {
	r.stopped.Store(true)
	return nil
}

// Player simulates playback by waiting for the clip duration.
type Player struct{}

var _ audio.Player = Player{}

// Play implements [audio.Player].
func (Player) Play(_ context.Context, clip audio.Clip, opts audio.PlayOptions) (audio.Playback, error) {
	pb := &playback{done: make(chan struct{}), stop: make(chan struct{})}
	go pb.run(clip.Duration(), opts.Loop)
	return pb, nil
}

type playback struct {
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func (p *playback) run(d time.Duration, loop bool) {
	defer close(p.done)
	if loop {
		<-p.stop
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stop:
	}
}

func (p *playback) Done() <-chan struct{} { return p.done }

func (p *playback) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// Router logs audio mode changes.
type Router struct{}

// SetMode implements [audio.Router].
func (Router) SetMode(_ context.Context, mode audio.Mode) error {
	slog.Debug("headless: audio mode",
		"plays_in_silent", mode.PlaysInSilentMode,
		"recording", mode.AllowsRecording,
		"earpiece", mode.Earpiece)
	return nil
}

// Vibrator logs vibration patterns.
type Vibrator struct {
	active atomic.Bool
}

// Vibrate implements [audio.Vibrator].
func (v *Vibrator) Vibrate(pattern []time.Duration, repeat bool) error {
	v.active.Store(repeat)
	slog.Debug("headless: vibrate", "pattern", pattern, "repeat", repeat)
	return nil
}

// Cancel implements [audio.Vibrator].
func (v *Vibrator) Cancel() error {
	if v.active.Swap(false) {
		slog.Debug("headless: vibration cancelled")
	}
	return nil
}
