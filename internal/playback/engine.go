// Package playback narrates a call script line by line.
//
// Caller lines are voiced through the best available path: a remote
// [tts.Provider] rendered to PCM and played on an [audio.Player], the
// device's own [audio.Synthesizer], or, with neither, a silent wait sized to
// the line. "You" lines are never voiced; the engine waits as long as the user
// would need to read them aloud.
package playback

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/awkwardescape/internal/observe"
	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

const (
	// DefaultRate and DefaultPitch are the device speech settings.
	DefaultRate  = 0.95
	DefaultPitch = 1.0

	minLineDuration = 800 * time.Millisecond
	perWord         = 350 * time.Millisecond
)

// Audio paths recorded per narrated line.
const (
	PathTTS      = "tts"
	PathDevice   = "device"
	PathEstimate = "estimate"
)

// EstimateDuration returns how long text takes to say: 350ms per word, at
// least 800ms.
func EstimateDuration(text string) time.Duration {
	d := time.Duration(len(strings.Fields(text))) * perWord
	return max(d, minLineDuration)
}

// Engine plays scripts. Only one script plays at a time; callers must call
// [Engine.Stop] before starting another.
//
// Engine is safe for concurrent use.
type Engine struct {
	synth   audio.Synthesizer
	tts     tts.Provider
	player  audio.Player
	metrics *observe.Metrics

	// wait blocks for d or until ctx is done, reporting whether d elapsed.
	wait func(ctx context.Context, d time.Duration) bool

	mu      sync.Mutex
	rate    float64
	pitch   float64
	cancel  context.CancelFunc
	current audio.Playback
}

// Option configures an [Engine].
type Option func(*Engine)

// WithSynthesizer voices Caller lines with the device synthesizer when no
// remote TTS is configured, or when it fails.
func WithSynthesizer(s audio.Synthesizer) Option {
	return func(e *Engine) { e.synth = s }
}

// WithTTS voices Caller lines with p, playing the rendered PCM on player.
// Both must be non-nil for the remote path to be used.
func WithTTS(p tts.Provider, player audio.Player) Option {
	return func(e *Engine) {
		e.tts = p
		e.player = player
	}
}

// WithSpeech overrides [DefaultRate] and [DefaultPitch].
func WithSpeech(rate, pitch float64) Option {
	return func(e *Engine) {
		e.rate = rate
		e.pitch = pitch
	}
}

// WithMetrics records playback metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// SetSpeech changes the device speech rate and pitch. It takes effect from
// the next line.
func (e *Engine) SetSpeech(rate, pitch float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = rate
	e.pitch = pitch
}

// Speech returns the current device speech rate and pitch.
func (e *Engine) Speech() (rate, pitch float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate, e.pitch
}

// New creates an [Engine].
func New(opts ...Option) *Engine {
	e := &Engine{
		rate:  DefaultRate,
		pitch: DefaultPitch,
		wait:  sleep,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// PlayScript narrates turns in order using voiceID for the caller. Before
// each line it calls onLineChange with the line index (onLineChange may be
// nil). After each line it waits for the turn's pause.
//
// PlayScript returns nil when the script ends or is cancelled through ctx or
// [Engine.Stop]. It never returns a provider error; failed speech degrades to
// the next path.
func (e *Engine) PlayScript(ctx context.Context, turns []types.ScriptTurn, voiceID string, onLineChange func(int)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "playback.PlayScript")
	defer span.End()
	span.SetAttributes(attribute.Int("turns", len(turns)), attribute.String("voice", voiceID))

	for i, turn := range turns {
		if ctx.Err() != nil {
			break
		}
		if onLineChange != nil {
			onLineChange(i)
		}

		path := PathEstimate
		if turn.Speaker == types.SpeakerCaller {
			path = e.speak(ctx, turn.Text, voiceID)
		} else if !e.wait(ctx, EstimateDuration(turn.Text)) {
			break
		}
		e.metrics.RecordPlaybackLine(ctx, string(turn.Speaker), path)

		if ctx.Err() != nil {
			break
		}
		if !e.wait(ctx, turn.Pause()) {
			break
		}
	}
	return nil
}

// speak voices one Caller line and returns the path used.
func (e *Engine) speak(ctx context.Context, text, voiceID string) string {
	if e.tts != nil && e.player != nil {
		if e.playRemote(ctx, text, voiceID) {
			return PathTTS
		}
		if ctx.Err() != nil {
			return PathTTS
		}
	}
	if e.synth != nil {
		rate, pitch := e.Speech()
		err := e.synth.Speak(ctx, text, audio.SpeechOptions{Voice: voiceID, Rate: rate, Pitch: pitch})
		if err == nil || ctx.Err() != nil {
			return PathDevice
		}
		slog.Warn("playback: device speech failed", "err", err)
	}
	e.wait(ctx, EstimateDuration(text))
	return PathEstimate
}

// playRemote renders text with the remote provider and blocks until the clip
// ends. It reports false when the line could not be played.
func (e *Engine) playRemote(ctx context.Context, text, voiceID string) bool {
	voice, ok := tts.LookupVoice(voiceID)
	if !ok {
		voice = tts.VoiceProfile{ID: voiceID}
	}
	rctx, span := observe.StartSpan(ctx, "playback.RenderLine")
	span.SetAttributes(attribute.String("voice", voice.ID), attribute.Int("chars", len(text)))
	clip, err := tts.Render(rctx, e.tts, text, voice)
	observe.EndSpan(span, err)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("playback: remote tts failed", "voice", voiceID, "err", err)
		}
		return false
	}
	pb, err := e.player.Play(ctx, clip, audio.PlayOptions{})
	if err != nil {
		slog.Warn("playback: cannot play rendered line", "err", err)
		return false
	}

	e.mu.Lock()
	e.current = pb
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.current == pb {
			e.current = nil
		}
		e.mu.Unlock()
	}()

	select {
	case <-pb.Done():
	case <-ctx.Done():
		_ = pb.Stop()
	}
	return true
}

// Stop cancels the script in progress and silences in-flight speech. It is
// safe to call when nothing is playing.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	current := e.current
	e.cancel = nil
	e.current = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if current != nil {
		if err := current.Stop(); err != nil {
			slog.Debug("playback: stop clip", "err", err)
		}
	}
	if e.synth != nil {
		if err := e.synth.Stop(); err != nil {
			slog.Debug("playback: stop speech", "err", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
