// Package llm defines the interface the script generator uses to ask a
// language model for fake call dialog and message texts.
//
// Every backend (the OpenAI API, anything reachable through any-llm-go, a
// fallback chain of those) answers one blocking completion. Implementations
// are safe for concurrent use and return once ctx is done.
package llm

import "context"

// Provider answers completion requests.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
