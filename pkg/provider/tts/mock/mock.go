// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	clip, _ := tts.Render(ctx, p, "Call me back.", voice)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of SynthesizeStream. Texts is
// filled as fragments are consumed and is complete once the audio channel
// closes.
type SynthesizeCall struct {
	Voice tts.VoiceProfile
	Texts []string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks is emitted, in order, after the text channel closes.
	SynthesizeChunks [][]byte

	// SynthesizeErr is returned by SynthesizeStream instead of a channel.
	SynthesizeErr error

	// ListVoicesResult and ListVoicesErr are returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile
	ListVoicesErr    error

	// OutputFormat is returned by Format. Zero selects 16 kHz mono.
	OutputFormat audio.Format

	calls []*SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	call := &SynthesizeCall{Voice: voice}
	p.calls = append(p.calls, call)
	chunks := append([][]byte(nil), p.SynthesizeChunks...)
	p.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case s, ok := <-text:
				if !ok {
					for _, c := range chunks {
						select {
						case out <- c:
						case <-ctx.Done():
							return
						}
					}
					return
				}
				p.mu.Lock()
				call.Texts = append(call.Texts, s)
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListVoicesResult, p.ListVoicesErr
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OutputFormat.SampleRate == 0 {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return p.OutputFormat
}

// SynthesizeCalls returns a snapshot of the recorded calls.
func (p *Provider) SynthesizeCalls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	for i, c := range p.calls {
		out[i] = SynthesizeCall{Voice: c.Voice, Texts: append([]string(nil), c.Texts...)}
	}
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
