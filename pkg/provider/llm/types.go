package llm

import "strings"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a completion request.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a single prompt. Messages must not be empty.
type CompletionRequest struct {
	// SystemPrompt, when set, is sent first with [RoleSystem].
	SystemPrompt string

	Messages []Message

	// Temperature in [0, 2]. Zero leaves the backend default.
	Temperature float64

	// MaxTokens caps the reply. Zero leaves the backend default.
	MaxTokens int

	// JSON asks the backend to reply with a single JSON object. Backends
	// without a JSON mode ignore it; the prompt must still ask for JSON.
	JSON bool
}

// Usage is token accounting as reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Text returns the reply with surrounding whitespace removed.
func (r *CompletionResponse) Text() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Content)
}
