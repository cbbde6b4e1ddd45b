package mic

import (
	"context"
	"time"
)

// Voice detection defaults.
const (
	DefaultVoiceThresholdDB = -40.0
	DefaultFramesRequired   = 4
	DefaultVoiceTimeout     = 7 * time.Second
)

// VoiceDetector reports voice when the average of the last FramesRequired
// samples is at or above ThresholdDB. It is not safe for concurrent use.
type VoiceDetector struct {
	ThresholdDB    float64
	FramesRequired int

	window []float64
	next   int
	filled int
}

// NewVoiceDetector returns a detector with a window of framesRequired
// samples. Values below one are raised to one.
func NewVoiceDetector(thresholdDB float64, framesRequired int) *VoiceDetector {
	if framesRequired < 1 {
		framesRequired = 1
	}
	return &VoiceDetector{
		ThresholdDB:    thresholdDB,
		FramesRequired: framesRequired,
		window:         make([]float64, framesRequired),
	}
}

// Observe adds a sample and reports whether the window now indicates voice.
func (d *VoiceDetector) Observe(db float64) bool {
	d.window[d.next] = db
	d.next = (d.next + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}
	if d.filled < len(d.window) {
		return false
	}
	var sum float64
	for _, v := range d.window {
		sum += v
	}
	return sum/float64(len(d.window)) >= d.ThresholdDB
}

// Reset empties the window.
func (d *VoiceDetector) Reset() {
	d.next, d.filled = 0, 0
}

// VoiceResult is the outcome of [DetectVoice].
type VoiceResult struct {
	PermissionGranted bool
	VoiceDetected     bool
}

// DetectOptions tunes [DetectVoice]. Zero fields take the package defaults;
// ThresholdDB is only defaulted when nil.
type DetectOptions struct {
	Timeout        time.Duration
	ThresholdDB    *float64
	FramesRequired int
}

func (o DetectOptions) withDefaults() DetectOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultVoiceTimeout
	}
	if o.ThresholdDB == nil {
		db := DefaultVoiceThresholdDB
		o.ThresholdDB = &db
	}
	if o.FramesRequired <= 0 {
		o.FramesRequired = DefaultFramesRequired
	}
	return o
}

// DetectVoice listens until voice is detected, the timeout measured from the
// call elapses, or ctx is cancelled. Any sampling already running on s is
// stopped first, and the microphone is released on every exit path.
func DetectVoice(ctx context.Context, s *Sampler, opts DetectOptions) VoiceResult {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	det := NewVoiceDetector(*opts.ThresholdDB, opts.FramesRequired)
	samples := make(chan float64, 1)
	granted := s.Start(ctx, func(db float64) {
		// Drop rather than block the sampler when the reader is behind.
		select {
		case samples <- db:
		default:
		}
	})
	if !granted {
		return VoiceResult{}
	}
	defer s.Stop()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return VoiceResult{PermissionGranted: true}
		case <-timer.C:
			return VoiceResult{PermissionGranted: true}
		case db := <-samples:
			if !time.Now().Before(deadline) {
				return VoiceResult{PermissionGranted: true}
			}
			if det.Observe(db) {
				return VoiceResult{PermissionGranted: true, VoiceDetected: true}
			}
		}
	}
}
