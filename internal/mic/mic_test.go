package mic

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/audio/mock"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ── Sampler ──────────────────────────────────────────────────────────────────

func TestSampler_PermissionDenied(t *testing.T) {
	rec := &mock.Recorder{Permission: false}
	s := NewSampler(rec, WithSampleEvery(time.Millisecond))
	if s.Start(context.Background(), nil) {
		t.Fatal("Start should fail when permission is denied")
	}
	if rec.StartCalls != 0 {
		t.Errorf("StartMetering called %d times, want 0", rec.StartCalls)
	}
	if s.Active() {
		t.Error("sampler should not be active")
	}
}

func TestSampler_DeliversLevels(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	rec.SetLevel(-30)
	s := NewSampler(rec, WithSampleEvery(time.Millisecond), WithSmoothing(1))

	var calls atomic.Int32
	if !s.Start(context.Background(), func(db float64) {
		if db == -30 {
			calls.Add(1)
		}
	}) {
		t.Fatal("Start failed")
	}
	defer s.Stop()

	waitFor(t, "level callbacks", func() bool { return calls.Load() >= 3 })
	if got := s.Level(); got != -30 {
		t.Errorf("Level = %v, want -30", got)
	}
}

func TestSampler_StartStopsPreviousSession(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	s := NewSampler(rec, WithSampleEvery(time.Millisecond))

	s.Start(context.Background(), nil)
	s.Start(context.Background(), nil)
	defer s.Stop()

	if len(rec.Recordings) != 2 {
		t.Fatalf("recordings = %d, want 2", len(rec.Recordings))
	}
	if !rec.Recordings[0].Stopped() {
		t.Error("first recording should be stopped by the second Start")
	}
	if got := rec.Active(); got != 1 {
		t.Errorf("active recordings = %d, want 1", got)
	}
}

func TestSampler_StopIdempotent(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	s := NewSampler(rec)
	s.Stop()
	s.Start(context.Background(), nil)
	s.Stop()
	s.Stop()
	if rec.Active() != 0 {
		t.Error("microphone still held after Stop")
	}
	if got := s.Level(); got != audio.FloorDB {
		t.Errorf("Level after Stop = %v, want floor", got)
	}
}

func TestSampler_NoCallbacksAfterStop(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	s := NewSampler(rec, WithSampleEvery(time.Millisecond))
	var calls atomic.Int32
	s.Start(context.Background(), func(float64) { calls.Add(1) })
	waitFor(t, "first callback", func() bool { return calls.Load() > 0 })
	s.Stop()
	time.Sleep(5 * time.Millisecond)
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Error("callbacks continued after Stop")
	}
}

// ── SilenceDetector ──────────────────────────────────────────────────────────

func TestSilenceDetector_FiresOnce(t *testing.T) {
	d := NewSilenceDetector(-40, 7*time.Second)
	start := time.Unix(0, 0)
	fired := 0
	for ms := 0; ms <= 10_000; ms += 200 {
		if d.Observe(start.Add(time.Duration(ms)*time.Millisecond), -60) {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("fired %d times, want exactly 1", fired)
	}
	if d.Armed() {
		t.Error("detector should be disarmed after firing")
	}
}

func TestSilenceDetector_LoudSampleResets(t *testing.T) {
	d := NewSilenceDetector(-40, 7*time.Second)
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	for ms := 0; ms < 3500; ms += 200 {
		if d.Observe(at(ms), -60) {
			t.Fatal("fired too early")
		}
	}
	d.Observe(at(3500), -20) // loud
	if got := d.Elapsed(at(3500)); got != 0 {
		t.Errorf("Elapsed after loud sample = %v, want 0", got)
	}

	// 7s of silence measured from the first quiet sample after the reset.
	firedAt := -1
	for ms := 3700; ms <= 12_000; ms += 200 {
		if d.Observe(at(ms), -60) {
			firedAt = ms
			break
		}
	}
	if firedAt != 10_700 {
		t.Errorf("fired at %dms, want 10700ms", firedAt)
	}
}

func TestSilenceDetector_ThresholdIsStrict(t *testing.T) {
	d := NewSilenceDetector(-40, time.Second)
	start := time.Unix(0, 0)
	for ms := 0; ms <= 2000; ms += 200 {
		if d.Observe(start.Add(time.Duration(ms)*time.Millisecond), -40) {
			t.Fatal("a sample exactly at the threshold is not quiet")
		}
	}
}

func TestSilenceDetector_ZeroValueDisarmed(t *testing.T) {
	var d SilenceDetector
	if d.Observe(time.Now(), -100) {
		t.Error("zero-value detector fired")
	}
}

// ── VoiceDetector ────────────────────────────────────────────────────────────

func TestVoiceDetector_Window(t *testing.T) {
	d := NewVoiceDetector(-40, 4)
	seq := []struct {
		db   float64
		want bool
	}{
		{-20, false}, // window not full
		{-20, false},
		{-20, false},
		{-20, true},
		{-80, true},  // -35 average
		{-80, false}, // -50 average
	}
	for i, s := range seq {
		if got := d.Observe(s.db); got != s.want {
			t.Errorf("sample %d (%v dB): got %v, want %v", i, s.db, got, s.want)
		}
	}
	d.Reset()
	if d.Observe(-10) {
		t.Error("detector fired with an empty window after Reset")
	}
}

// ── DetectVoice ──────────────────────────────────────────────────────────────

func TestDetectVoice_Detected(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	rec.SetLevel(-25)
	s := NewSampler(rec, WithSampleEvery(time.Millisecond))

	got := DetectVoice(context.Background(), s, DetectOptions{Timeout: 2 * time.Second})
	if !got.PermissionGranted || !got.VoiceDetected {
		t.Fatalf("result = %+v, want granted and detected", got)
	}
	if rec.Active() != 0 || s.Active() {
		t.Error("microphone not released")
	}
}

func TestDetectVoice_Timeout(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	rec.SetLevel(-70)
	s := NewSampler(rec, WithSampleEvery(time.Millisecond))

	start := time.Now()
	got := DetectVoice(context.Background(), s, DetectOptions{Timeout: 30 * time.Millisecond})
	if !got.PermissionGranted || got.VoiceDetected {
		t.Fatalf("result = %+v, want granted, not detected", got)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not honoured")
	}
	if rec.Active() != 0 {
		t.Error("microphone not released")
	}
}

func TestDetectVoice_ZeroThreshold(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	rec.SetLevel(-25)
	s := NewSampler(rec, WithSampleEvery(time.Millisecond))

	zero := 0.0
	got := DetectVoice(context.Background(), s, DetectOptions{Timeout: 50 * time.Millisecond, ThresholdDB: &zero})
	if got.VoiceDetected {
		t.Error("-25 dB detected as voice against a 0 dB threshold")
	}
}

func TestDetectVoice_PermissionDenied(t *testing.T) {
	s := NewSampler(&mock.Recorder{Permission: false})
	got := DetectVoice(context.Background(), s, DetectOptions{})
	if got.PermissionGranted || got.VoiceDetected {
		t.Fatalf("result = %+v, want zero", got)
	}
}

func TestDetectVoice_StopsExistingSampling(t *testing.T) {
	rec := &mock.Recorder{Permission: true}
	rec.SetLevel(-25)
	s := NewSampler(rec, WithSampleEvery(time.Millisecond))
	s.Start(context.Background(), nil)

	DetectVoice(context.Background(), s, DetectOptions{Timeout: time.Second})
	if !rec.Recordings[0].Stopped() {
		t.Error("pre-existing sampling session was not stopped")
	}
}
