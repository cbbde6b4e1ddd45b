package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/awkwardescape/internal/mic"
	"github.com/MrWong99/awkwardescape/internal/script"
	"github.com/MrWong99/awkwardescape/internal/voiceguard"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

const (
	msgNoPersona        = "Add a persona to continue."
	msgMessageScheduled = "Message scheduled."
	msgNotifyDenied     = "Notification permission is required for messages."
)

// EscapeResult reports what a mode trigger did.
type EscapeResult struct {
	Mode types.CallMode `json:"mode"`

	// Scheduled is set in silent-message mode when the message was queued.
	Scheduled bool `json:"scheduled,omitempty"`
}

// Escape fires the escape configured in settings: an instant call, a
// voice-guard session or a silent message.
func (a *App) Escape(ctx context.Context) (EscapeResult, error) {
	mode := a.settings.State().Mode
	res := EscapeResult{Mode: mode}
	switch mode {
	case types.ModeVoiceGuard:
		return res, a.StartVoiceGuard(ctx, "")
	case types.ModeSilentMessage:
		ok, err := a.SendMessage(ctx, "")
		res.Scheduled = ok
		return res, err
	default:
		res.Mode = types.ModeInstantCall
		return res, a.Ring(ctx, "")
	}
}

// Ring starts an instant call from the persona with personaID, or from the
// selected persona when personaID is empty. A running voice-guard session is
// ended first so the call can take the microphone.
func (a *App) Ring(ctx context.Context, personaID string) error {
	p, err := a.persona(personaID)
	if err != nil {
		if errors.Is(err, ErrNoPersona) {
			a.board.Set(msgNoPersona, 0)
		}
		return err
	}
	a.guard.Cancel()
	a.stopPlayback()
	a.calls.StartRinging(ctx, p, types.ModeInstantCall)
	return nil
}

// Answer connects the ringing call and starts narrating its script. A
// non-empty personaID overrides the caller. Like [App.Ring] it ends a
// running voice-guard session first. It reports false when there was no
// persona to answer with.
func (a *App) Answer(ctx context.Context, personaID string) (bool, error) {
	var override *types.Persona
	if personaID != "" {
		p, err := a.persona(personaID)
		if err != nil {
			return false, err
		}
		override = &p
	}
	a.guard.Cancel()
	a.stopPlayback()
	if !a.calls.AnswerCall(ctx, override) {
		return false, nil
	}
	a.startPlayback(ctx)
	return true, nil
}

// Decline rejects a ringing call and returns to idle.
func (a *App) Decline(ctx context.Context) bool {
	if !a.calls.Decline(ctx) {
		return false
	}
	a.calls.ResetCall()
	return true
}

// End hangs up, stops narration and returns to idle.
func (a *App) End(ctx context.Context) bool {
	a.stopPlayback()
	if !a.calls.EndCall(ctx) {
		return false
	}
	a.calls.ResetCall()
	return true
}

// ToggleMute flips mute on the answered call and returns the new value.
func (a *App) ToggleMute(ctx context.Context) bool { return a.calls.ToggleMute(ctx) }

// ToggleSpeaker flips the speakerphone and returns the new value.
func (a *App) ToggleSpeaker(ctx context.Context) bool { return a.calls.ToggleSpeaker(ctx) }

// SendMessage writes a fake text message from the persona with personaID
// (or the selected persona) and schedules it as a notification after the
// configured delay. It reports whether the message was scheduled; a denied
// notification permission is not an error.
func (a *App) SendMessage(ctx context.Context, personaID string) (bool, error) {
	p, err := a.persona(personaID)
	if err != nil {
		if errors.Is(err, ErrNoPersona) {
			a.board.Set(msgNoPersona, 0)
		}
		return false, err
	}
	body := a.scripts.GenerateMessageText(ctx, p, script.NewSeed())

	a.mu.Lock()
	delay := a.notifyDelay
	a.mu.Unlock()

	ok := a.messages.ScheduleFakeMessage(ctx, p.DisplayName, body, delay)
	a.metrics.RecordCallTransition(ctx, "message", string(types.ModeSilentMessage))
	if ok {
		a.board.Set(msgMessageScheduled, 0)
	} else {
		a.board.Set(msgNotifyDenied, 0)
	}
	return ok, nil
}

// StartVoiceGuard starts listening with the stored window, silence and
// threshold. An empty variant uses the configured one. It returns
// [ErrMicBusy] while a call holds the microphone and
// [voiceguard.ErrPermissionDenied] when access is refused.
func (a *App) StartVoiceGuard(ctx context.Context, variant voiceguard.Variant) error {
	if a.calls.Snapshot().Active() {
		return ErrMicBusy
	}
	if variant == "" {
		variant = voiceguard.Variant(a.cfg.VoiceGuard.Variant)
	}
	st := a.settings.State()
	return a.guard.StartSession(ctx, voiceguard.Params{
		Window:      st.VoiceGuardWindow(),
		Silence:     st.VoiceGuardSilence(),
		ThresholdDB: &st.VoiceGuardDBThreshold,
		Variant:     variant,
	})
}

// StopVoiceGuard ends the voice-guard session. It reports whether one was
// running.
func (a *App) StopVoiceGuard() bool { return a.guard.EndSession() }

// MicCheck listens once for speech with the stored threshold. It refuses to
// run while a call or a voice-guard session holds the microphone.
func (a *App) MicCheck(ctx context.Context) (mic.VoiceResult, error) {
	if a.sampler.Active() || a.guard.Active() || a.calls.Snapshot().Active() {
		return mic.VoiceResult{}, ErrMicBusy
	}
	threshold := a.settings.State().VoiceGuardDBThreshold
	res := mic.DetectVoice(ctx, a.sampler, mic.DetectOptions{
		Timeout:        a.cfg.VoiceGuard.DetectTimeout,
		ThresholdDB:    &threshold,
		FramesRequired: a.cfg.VoiceGuard.FramesRequired,
	})
	if !res.PermissionGranted {
		a.metrics.RecordPermissionDenied(ctx, "microphone")
	}
	return res, nil
}

// startPlayback narrates the answered call's script on its own goroutine.
// Cursor updates carry the call generation and stop applying once the call
// is superseded.
func (a *App) startPlayback(ctx context.Context) {
	snap := a.calls.Snapshot()
	if snap.Persona == nil || len(snap.Script) == 0 {
		return
	}
	voice := snap.Persona.VoiceID
	if voice == "" {
		voice = a.settings.State().VoiceID
	}

	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Lock()
	prev := a.playCancel
	a.playCancel = cancel
	a.mu.Unlock()
	if prev != nil {
		prev()
		a.player.Stop()
	}

	gen := snap.Generation
	turns := snap.Script
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		_ = a.player.PlayScript(playCtx, turns, voice, func(i int) {
			a.calls.SetActiveLineIndexAt(gen, i)
		})
		slog.Debug("app: script finished", "generation", gen)
	}()
}

func (a *App) stopPlayback() {
	a.mu.Lock()
	cancel := a.playCancel
	a.playCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		a.player.Stop()
	}
}
