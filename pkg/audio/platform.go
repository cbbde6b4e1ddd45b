// Package audio defines the device-facing interfaces awkwardescape consumes:
// microphone metering, clip playback, output routing, vibration and on-device
// speech synthesis.
//
// Concrete adapters live in sub-packages: audio/desktop talks to real desktop
// hardware through miniaudio, audio/headless runs without any device, and
// audio/mock records calls for tests. The package also carries small PCM
// helpers (level metering, resampling, tone generation) shared by those
// adapters.
package audio

import (
	"context"
	"time"
)

// Recorder grants access to microphone level metering.
//
// Only one [Recording] should be live at a time. Implementations may reject
// or silently replace a second concurrent recording.
type Recorder interface {
	// RequestPermission asks the platform for microphone access. It returns
	// false without error when the user denies access.
	RequestPermission(ctx context.Context) (bool, error)

	// StartMetering opens the microphone and begins level metering.
	StartMetering(ctx context.Context) (Recording, error)
}

// Recording is a live microphone handle.
type Recording interface {
	// Level returns the most recent metering reading in dBFS.
	Level() float64

	// Stop releases the microphone. Calling Stop more than once is allowed.
	Stop() error
}

// PlayOptions controls clip playback.
type PlayOptions struct {
	// Loop restarts the clip when it reaches its end until stopped.
	Loop bool

	// Volume is a linear gain in [0, 1]. Zero is treated as full volume.
	Volume float64
}

// Player plays PCM clips through the current output route.
type Player interface {
	Play(ctx context.Context, clip Clip, opts PlayOptions) (Playback, error)
}

// Playback is a handle for a clip that is playing.
type Playback interface {
	// Done is closed when the clip finished or was stopped.
	Done() <-chan struct{}

	// Stop halts playback. It is safe to call after Done is closed.
	Stop() error
}

// Mode is the platform audio session configuration.
type Mode struct {
	// PlaysInSilentMode keeps audio audible when the device is muted.
	PlaysInSilentMode bool

	// AllowsRecording enables the microphone alongside playback.
	AllowsRecording bool

	// Earpiece routes output through the earpiece instead of the speaker.
	Earpiece bool
}

// Router applies an audio session [Mode].
type Router interface {
	SetMode(ctx context.Context, mode Mode) error
}

// Vibrator drives the haptic motor.
type Vibrator interface {
	// Vibrate runs pattern, a list of alternating wait/vibrate durations.
	// When repeat is true the pattern loops until Cancel is called.
	Vibrate(pattern []time.Duration, repeat bool) error

	Cancel() error
}

// SpeechOptions tunes on-device speech synthesis.
type SpeechOptions struct {
	Voice string
	Rate  float64
	Pitch float64
}

// Synthesizer speaks text with the device's own text-to-speech engine.
type Synthesizer interface {
	// Speak blocks until the utterance completes, is stopped, or fails, or
	// until ctx is cancelled.
	Speak(ctx context.Context, text string, opts SpeechOptions) error

	// Stop interrupts any in-flight utterance.
	Stop() error
}

// Devices bundles the platform collaborators of one host. Any field may be
// nil when the host lacks the capability; consumers degrade accordingly.
type Devices struct {
	Recorder    Recorder
	Player      Player
	Router      Router
	Vibrator    Vibrator
	Synthesizer Synthesizer
}
