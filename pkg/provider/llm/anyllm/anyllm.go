// Package anyllm implements [llm.Provider] on top of
// github.com/mozilla-ai/any-llm-go, so one adapter covers Groq, OpenAI,
// Anthropic, Gemini, Ollama, DeepSeek, Mistral and local llama.cpp or
// llamafile servers.
//
//	p, err := anyllm.New("groq", "", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
)

// DefaultGroqModel writes short dialog fast enough to be ready before the
// phone is answered.
const DefaultGroqModel = "llama-3.1-8b-instant"

// DefaultModels are used when a backend is created without a model. Local
// servers have no sensible default and always need one.
var DefaultModels = map[string]string{
	"groq":      DefaultGroqModel,
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-haiku-latest",
	"gemini":    "gemini-2.0-flash",
	"deepseek":  "deepseek-chat",
	"mistral":   "mistral-small-latest",
}

type factory func(...anyllmlib.Option) (anyllmlib.Provider, error)

func adapt[P anyllmlib.Provider](f func(...anyllmlib.Option) (P, error)) factory {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return f(opts...)
	}
}

var factories = map[string]factory{
	"groq":      adapt(groq.New),
	"openai":    adapt(anyllmoai.New),
	"anthropic": adapt(anthropic.New),
	"gemini":    adapt(gemini.New),
	"ollama":    adapt(ollama.New),
	"deepseek":  adapt(deepseek.New),
	"mistral":   adapt(mistral.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
}

// SupportedBackends returns the backend names accepted by [New], sorted.
func SupportedBackends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider sends completions to one any-llm-go backend.
type Provider struct {
	name    string
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Provider on the named backend. opts are any-llm-go options
// such as anyllmlib.WithAPIKey; without a key each backend reads its usual
// environment variable (GROQ_API_KEY, OPENAI_API_KEY, ...).
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(strings.TrimSpace(backendName))
	if name == "" {
		return nil, errors.New("anyllm: backend name is required")
	}
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q; supported: %s", backendName, strings.Join(SupportedBackends(), ", "))
	}
	if model == "" {
		model = DefaultModels[name]
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: %s needs a model", name)
	}
	backend, err := f(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{name: name, backend: backend, model: model}, nil
}

// NewGroq creates a Provider on Groq. An empty model selects
// [DefaultGroqModel].
func NewGroq(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("groq", model, opts...)
}

// Backend returns the backend name.
func (p *Provider) Backend() string { return p.name }

// Model returns the model name.
func (p *Provider) Model() string { return p.model }

// Complete implements [llm.Provider]. The JSON flag is not forwarded; the
// prompt carries the format instructions.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anyllm: request has no messages")
	}
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	out := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if t := req.Temperature; t != 0 {
		out.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		out.MaxTokens = &n
	}
	return out
}
