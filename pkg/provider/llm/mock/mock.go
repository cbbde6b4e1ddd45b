// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts sent by the script
// generator and to feed controlled replies without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"turns":[...]}`},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete when Responses is empty.
	CompleteResponse *llm.CompletionResponse

	// Responses, when non-empty, are returned in order, one per call.
	Responses []string

	// CompleteErr is returned as the error from Complete.
	CompleteErr error

	// Block makes Complete wait for ctx cancellation and return ctx.Err().
	Block bool

	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	block := p.Block
	err := p.CompleteErr
	var resp *llm.CompletionResponse
	if len(p.Responses) > 0 {
		resp = &llm.CompletionResponse{Content: p.Responses[0]}
		p.Responses = p.Responses[1:]
	} else if p.CompleteResponse != nil {
		r := *p.CompleteResponse
		resp = &r
	}
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &llm.CompletionResponse{}
	}
	return resp, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
