// Package mic samples microphone levels and turns them into silence and
// voice decisions.
//
// A single [Sampler] owns the microphone for the whole process: every
// consumer (live level indicator during a call, Voice Guard, voice
// detection) goes through it, and starting a new sampling session always
// stops the previous one first.
package mic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/awkwardescape/pkg/audio"
)

// DefaultSampleEvery is the metering poll interval.
const DefaultSampleEvery = 200 * time.Millisecond

// DefaultSmoothing is the weight of a new reading in the smoothed level.
const DefaultSmoothing = 0.3

// LevelFunc receives each raw metering sample in dBFS.
type LevelFunc func(db float64)

// Sampler polls an [audio.Recorder] at a fixed interval.
// It is safe for concurrent use.
type Sampler struct {
	rec         audio.Recorder
	sampleEvery time.Duration
	smoothing   float64

	mu       sync.Mutex
	active   *session
	smoothed float64
}

type session struct {
	rec    audio.Recording
	cancel context.CancelFunc
}

// Option configures a [Sampler].
type Option func(*Sampler)

// WithSampleEvery sets the poll interval.
func WithSampleEvery(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.sampleEvery = d
		}
	}
}

// WithSmoothing sets the exponential smoothing weight in (0, 1].
func WithSmoothing(alpha float64) Option {
	return func(s *Sampler) {
		if alpha > 0 && alpha <= 1 {
			s.smoothing = alpha
		}
	}
}

// NewSampler returns a Sampler metering rec.
func NewSampler(rec audio.Recorder, opts ...Option) *Sampler {
	s := &Sampler{
		rec:         rec,
		sampleEvery: DefaultSampleEvery,
		smoothing:   DefaultSmoothing,
		smoothed:    audio.FloorDB,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SampleEvery returns the poll interval.
func (s *Sampler) SampleEvery() time.Duration { return s.sampleEvery }

// Start requests microphone permission and begins sampling. onLevel is
// called from the sampling goroutine with every raw reading; one call may
// still be in flight when Stop returns, so consumers that care guard it with
// their own generation check.
//
// Any session already running is stopped first. Start returns false, and
// does not sample, when permission is denied or the microphone cannot be
// opened.
func (s *Sampler) Start(ctx context.Context, onLevel LevelFunc) bool {
	s.Stop()
	if s.rec == nil {
		return false
	}

	granted, err := s.rec.RequestPermission(ctx)
	if err != nil {
		slog.Warn("mic: permission request failed", "err", err)
		return false
	}
	if !granted {
		slog.Info("mic: permission denied")
		return false
	}

	rec, err := s.rec.StartMetering(ctx)
	if err != nil {
		slog.Warn("mic: start metering failed", "err", err)
		return false
	}

	s.mu.Lock()
	// A concurrent Start may have won while we were waiting on the platform.
	if s.active != nil {
		prev := s.active
		s.active = nil
		s.mu.Unlock()
		prev.stop()
		s.mu.Lock()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{rec: rec, cancel: cancel}
	s.active = sess
	s.smoothed = audio.FloorDB
	s.mu.Unlock()

	go s.poll(runCtx, sess, onLevel)
	slog.Debug("mic: sampling started", "every", s.sampleEvery)
	return true
}

// Stop ends sampling and releases the microphone. It is a no-op when idle.
func (s *Sampler) Stop() {
	s.mu.Lock()
	sess := s.active
	s.active = nil
	s.smoothed = audio.FloorDB
	s.mu.Unlock()
	if sess != nil {
		sess.stop()
		slog.Debug("mic: sampling stopped")
	}
}

// Active reports whether a session is running.
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Level returns the smoothed level in dBFS, or [audio.FloorDB] when idle.
func (s *Sampler) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smoothed
}

func (s *Sampler) poll(ctx context.Context, sess *session, onLevel LevelFunc) {
	t := time.NewTicker(s.sampleEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		db := sess.rec.Level()

		s.mu.Lock()
		if s.active != sess {
			s.mu.Unlock()
			return
		}
		s.smoothed = audio.Smooth(s.smoothed, db, s.smoothing)
		s.mu.Unlock()

		if onLevel != nil {
			onLevel(db)
		}
	}
}

// stop cancels the poll loop and releases the recording. It does not wait
// for the loop, so it is safe to call from inside a LevelFunc.
func (sess *session) stop() {
	sess.cancel()
	if err := sess.rec.Stop(); err != nil {
		slog.Warn("mic: stop recording", "err", err)
	}
}
