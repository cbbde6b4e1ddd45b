package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
)

// ErrEmptyCompletion counts a blank reply as a backend failure so the next
// backend gets a chance.
var ErrEmptyCompletion = errors.New("resilience: empty completion")

// LLMFallback is an [llm.Provider] that tries a chain of backends, each
// behind its own breaker, until one returns text.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback starts a chain with primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the chain.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Backends returns the backend names in try order.
func (f *LLMFallback) Backends() []string { return f.group.Names() }

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Text() == "" {
			return nil, ErrEmptyCompletion
		}
		return resp, nil
	})
}
