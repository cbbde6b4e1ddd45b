package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when nothing is
// registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// AudioPlatform is an opened audio backend.
type AudioPlatform struct {
	Devices audio.Devices

	// Close releases the hardware. It may be nil.
	Close func() error

	// SetLevel overrides the microphone level on backends without a real
	// microphone. It is nil on hardware backends.
	SetLevel func(db float64)
}

// factories is one kind's name to constructor table.
type factories[In, Out any] struct {
	kind string
	m    map[string]func(In) (Out, error)
}

func newFactories[In, Out any](kind string) factories[In, Out] {
	return factories[In, Out]{kind: kind, m: make(map[string]func(In) (Out, error))}
}

func (f factories[In, Out]) lookup(name string) (func(In) (Out, error), error) {
	factory, ok := f.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return factory, nil
}

// create looks the factory up under mu and runs it unlocked.
func create[In, Out any](mu *sync.RWMutex, f factories[In, Out], name string, in In) (Out, error) {
	mu.RLock()
	factory, err := f.lookup(name)
	mu.RUnlock()
	if err != nil {
		var zero Out
		return zero, err
	}
	return factory(in)
}

func (f factories[In, Out]) names() []string {
	return slices.Sorted(maps.Keys(f.m))
}

// Registry maps provider names to constructors for each provider kind.
// Registering a name twice replaces the earlier factory. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   factories[ProviderEntry, llm.Provider]
	tts   factories[ProviderEntry, tts.Provider]
	audio factories[AudioConfig, AudioPlatform]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   newFactories[ProviderEntry, llm.Provider]("llm"),
		tts:   newFactories[ProviderEntry, tts.Provider]("tts"),
		audio: newFactories[AudioConfig, AudioPlatform]("audio"),
	}
}

// RegisterLLM registers an LLM factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterTTS registers a TTS factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (AudioPlatform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = factory
}

// CreateLLM builds the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, entry.Name, entry)
}

// CreateTTS builds the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(&r.mu, r.tts, entry.Name, entry)
}

// CreateAudio opens the audio platform registered under cfg.Backend.
func (r *Registry) CreateAudio(cfg AudioConfig) (AudioPlatform, error) {
	return create(&r.mu, r.audio, cfg.Backend, cfg)
}

// Names lists the registered names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.llm.kind:   r.llm.names(),
		r.tts.kind:   r.tts.names(),
		r.audio.kind: r.audio.names(),
	}
}
