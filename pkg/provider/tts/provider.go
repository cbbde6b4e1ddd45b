// Package tts defines the Provider interface for remote Text-to-Speech
// backends that voice the fake caller.
//
// The primary entry point is SynthesizeStream, which accepts a channel of
// text fragments and returns a channel of raw PCM audio as it becomes
// available. [Render] collects a whole line into an [audio.Clip] for callers
// that play one line at a time.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/MrWong99/awkwardescape/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from text and returns a channel
	// of little-endian int16 PCM chunks in [Provider.Format].
	//
	// The audio channel is closed when all text has been synthesised, on
	// failure, or when ctx is cancelled. Callers must drain it. A non-nil
	// error is returned only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)

	// Format reports the PCM format of synthesized audio.
	Format() audio.Format
}

// Render synthesizes a single line and returns it as a playable clip.
func Render(ctx context.Context, p Provider, text string, voice VoiceProfile) (audio.Clip, error) {
	in := make(chan string, 1)
	in <- text
	close(in)

	out, err := p.SynthesizeStream(ctx, in, voice)
	if err != nil {
		return audio.Clip{}, err
	}
	var buf bytes.Buffer
	for chunk := range out {
		buf.Write(chunk)
	}
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	if buf.Len() == 0 {
		return audio.Clip{}, fmt.Errorf("tts: no audio synthesized for voice %q", voice.ID)
	}
	return audio.Clip{PCM: buf.Bytes(), Format: p.Format()}, nil
}
