package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/awkwardescape/internal/observe"
	audiomock "github.com/MrWong99/awkwardescape/pkg/audio/mock"
	ttsmock "github.com/MrWong99/awkwardescape/pkg/provider/tts/mock"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

// waitRecorder replaces real sleeping and records requested durations.
type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) bool {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err() == nil
}

func (w *waitRecorder) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *waitRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	e := New(append(opts, WithMetrics(m))...)
	w := &waitRecorder{}
	e.wait = w.wait
	return e, w
}

func pause(ms int) *int { return &ms }

var script = []types.ScriptTurn{
	{Speaker: types.SpeakerCaller, Text: "It's Strict Boss, I need you now."},
	{Speaker: types.SpeakerYou, Text: "Okay, stepping out right now."},
	{Speaker: types.SpeakerCaller, Text: "Hurry.", PauseMs: pause(0)},
	{Speaker: types.SpeakerYou, Text: "Bye.", PauseMs: pause(250)},
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		text string
		want time.Duration
	}{
		{"", 800 * time.Millisecond},
		{"Bye.", 800 * time.Millisecond},
		{"one two", 800 * time.Millisecond},
		{"one two three", 1050 * time.Millisecond},
		{"  Okay,   stepping out right now. ", 1750 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := EstimateDuration(tc.text); got != tc.want {
			t.Errorf("EstimateDuration(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestPlayScript_DeviceSpeech(t *testing.T) {
	synth := &audiomock.Synthesizer{}
	e, w := newTestEngine(t, WithSynthesizer(synth))

	var lines []int
	if err := e.PlayScript(context.Background(), script, "en-US-Standard-C", func(i int) { lines = append(lines, i) }); err != nil {
		t.Fatalf("PlayScript: %v", err)
	}

	if len(lines) != 4 || lines[0] != 0 || lines[3] != 3 {
		t.Errorf("line changes = %v, want [0 1 2 3]", lines)
	}
	calls := synth.SpeakCalls()
	if len(calls) != 2 {
		t.Fatalf("spoke %d lines, want 2 (Caller only)", len(calls))
	}
	if calls[0].Text != script[0].Text || calls[1].Text != "Hurry." {
		t.Errorf("spoken texts = %q, %q", calls[0].Text, calls[1].Text)
	}
	opts := calls[0].Opts
	if opts.Voice != "en-US-Standard-C" || opts.Rate != DefaultRate || opts.Pitch != DefaultPitch {
		t.Errorf("speech options = %+v", opts)
	}

	want := []time.Duration{
		types.DefaultPause,      // after Caller line 0
		1750 * time.Millisecond, // You line 1, five words
		types.DefaultPause,      // after line 1
		0,                       // explicit zero pause after line 2
		800 * time.Millisecond,  // You line 3
		250 * time.Millisecond,  // pause after line 3
	}
	if got := w.all(); !equalDurations(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestSetSpeech(t *testing.T) {
	synth := &audiomock.Synthesizer{}
	e, _ := newTestEngine(t, WithSynthesizer(synth), WithSpeech(1.2, 0.8))
	if rate, pitch := e.Speech(); rate != 1.2 || pitch != 0.8 {
		t.Fatalf("Speech() = %v, %v; want 1.2, 0.8", rate, pitch)
	}

	e.SetSpeech(1.5, 1.1)
	if err := e.PlayScript(context.Background(), script[:1], "v", nil); err != nil {
		t.Fatalf("PlayScript: %v", err)
	}
	calls := synth.SpeakCalls()
	if len(calls) != 1 {
		t.Fatalf("spoke %d lines, want 1", len(calls))
	}
	if calls[0].Opts.Rate != 1.5 || calls[0].Opts.Pitch != 1.1 {
		t.Errorf("speech options = %+v, want rate 1.5 pitch 1.1", calls[0].Opts)
	}
}

func TestPlayScript_RemoteTTS(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 0, 2, 0}, {3, 0}}}
	player := &audiomock.Player{}
	synth := &audiomock.Synthesizer{}
	e, _ := newTestEngine(t, WithTTS(provider, player), WithSynthesizer(synth))

	turns := script[:2]
	if err := e.PlayScript(context.Background(), turns, "en-US-Wavenet-D", nil); err != nil {
		t.Fatalf("PlayScript: %v", err)
	}

	calls := provider.SynthesizeCalls()
	if len(calls) != 1 {
		t.Fatalf("tts called %d times, want 1", len(calls))
	}
	if calls[0].Voice.ID != "en-US-Wavenet-D" {
		t.Errorf("tts voice = %q", calls[0].Voice.ID)
	}
	if len(calls[0].Texts) != 1 || calls[0].Texts[0] != turns[0].Text {
		t.Errorf("tts texts = %v", calls[0].Texts)
	}
	plays := player.PlayCalls()
	if len(plays) != 1 {
		t.Fatalf("played %d clips, want 1", len(plays))
	}
	if got := len(plays[0].Clip.PCM); got != 6 {
		t.Errorf("clip has %d bytes, want 6", got)
	}
	if plays[0].Clip.Format != provider.Format() {
		t.Errorf("clip format = %+v, want %+v", plays[0].Clip.Format, provider.Format())
	}
	if n := len(synth.SpeakCalls()); n != 0 {
		t.Errorf("device synthesizer used %d times alongside remote tts", n)
	}
}

func TestPlayScript_RemoteFailureFallsBackToDevice(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	synth := &audiomock.Synthesizer{}
	e, _ := newTestEngine(t, WithTTS(provider, &audiomock.Player{}), WithSynthesizer(synth))

	_ = e.PlayScript(context.Background(), script[:1], "v", nil)

	if n := len(synth.SpeakCalls()); n != 1 {
		t.Errorf("device synthesizer used %d times, want 1", n)
	}
}

func TestPlayScript_NoVoiceWaitsEstimate(t *testing.T) {
	e, w := newTestEngine(t)

	_ = e.PlayScript(context.Background(), script[:1], "", nil)

	want := []time.Duration{2450 * time.Millisecond, types.DefaultPause}
	if got := w.all(); !equalDurations(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestPlayScript_DeviceErrorWaitsEstimate(t *testing.T) {
	synth := &audiomock.Synthesizer{SpeakErr: errors.New("engine busy")}
	e, w := newTestEngine(t, WithSynthesizer(synth))

	_ = e.PlayScript(context.Background(), script[2:3], "", nil)

	want := []time.Duration{800 * time.Millisecond, 0}
	if got := w.all(); !equalDurations(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestPlayScript_StopInterruptsSpeech(t *testing.T) {
	synth := &audiomock.Synthesizer{Hold: true}
	e, _ := newTestEngine(t, WithSynthesizer(synth))

	var (
		mu    sync.Mutex
		lines []int
	)
	done := make(chan error, 1)
	go func() {
		done <- e.PlayScript(context.Background(), script, "", func(i int) {
			mu.Lock()
			lines = append(lines, i)
			mu.Unlock()
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(synth.SpeakCalls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("speech never started")
		}
		time.Sleep(time.Millisecond)
	}
	e.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("PlayScript after Stop = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PlayScript did not return after Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 1 {
		t.Errorf("line changes = %v, want only the first line", lines)
	}
	if n := len(synth.SpeakCalls()); n != 1 {
		t.Errorf("spoke %d lines after Stop, want 1", n)
	}
}

func TestPlayScript_StopInterruptsRemoteClip(t *testing.T) {
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{0, 0}}}
	player := &audiomock.Player{Hold: true}
	e, _ := newTestEngine(t, WithTTS(provider, player))

	done := make(chan error, 1)
	go func() { done <- e.PlayScript(context.Background(), script, "", nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(player.PlayCalls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("clip never started")
		}
		time.Sleep(time.Millisecond)
	}
	e.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PlayScript did not return after Stop")
	}
	if pb := player.PlayCalls()[0].Playback; !pb.Finished() {
		t.Error("in-flight clip was not stopped")
	}
}

func TestPlayScript_CancelledContext(t *testing.T) {
	synth := &audiomock.Synthesizer{}
	e, _ := newTestEngine(t, WithSynthesizer(synth))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	if err := e.PlayScript(ctx, script, "", func(int) { called = true }); err != nil {
		t.Fatalf("PlayScript = %v, want nil", err)
	}
	if called || len(synth.SpeakCalls()) != 0 {
		t.Error("cancelled script still played")
	}
}

func TestStop_Idle(t *testing.T) {
	synth := &audiomock.Synthesizer{}
	e, _ := newTestEngine(t, WithSynthesizer(synth))
	e.Stop()
	e.Stop()
	New().Stop()
}

func TestSleep(t *testing.T) {
	if !sleep(context.Background(), time.Millisecond) {
		t.Error("sleep returned false for an elapsed timer")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Error("sleep returned true for a cancelled context")
	}
	if sleep(ctx, 0) {
		t.Error("zero sleep on cancelled context returned true")
	}
}
