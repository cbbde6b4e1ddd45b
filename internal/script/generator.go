// Package script produces the fake dialog for a call and the body of a fake
// text message.
//
// A [Generator] asks an [llm.Provider] for a fresh script and falls back to a
// deterministic offline template whenever the provider is missing, slow,
// failing, or returns something unusable. Generation never fails: callers
// always get a usable script.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/awkwardescape/internal/observe"
	"github.com/MrWong99/awkwardescape/internal/resilience"
	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

const (
	// DefaultTimeout bounds a single remote generation.
	DefaultTimeout = 8 * time.Second

	// DefaultTemperature is the sampling temperature sent to the LLM.
	DefaultTemperature = 0.7

	// minTurns is the smallest usable remote script.
	minTurns = 2
)

// Fallback reasons recorded in metrics and spans.
const (
	reasonNone        = ""
	reasonNoProvider  = "no_provider"
	reasonTimeout     = "timeout"
	reasonCircuitOpen = "circuit_open"
	reasonError       = "provider_error"
	reasonBadJSON     = "invalid_json"
	reasonTooFew      = "too_few_turns"
	reasonEmpty       = "empty"
)

const (
	callSystemPrompt    = "You generate short, believable phone call dialog for an urgent excuse. Output JSON only."
	messageSystemPrompt = "You generate a single urgent text message to excuse someone from a situation."
)

var (
	callFence    = regexp.MustCompile("(?i)```json|```")
	messageNoise = regexp.MustCompile("```|\"")
)

// Generator produces call scripts and fake message bodies.
//
// Generator is safe for concurrent use.
type Generator struct {
	llm         llm.Provider
	breaker     *resilience.CircuitBreaker
	timeout     time.Duration
	temperature float64
	metrics     *observe.Metrics
}

// Option configures a [Generator].
type Option func(*Generator)

// WithLLM sets the remote provider. Without one every generation is offline.
func WithLLM(p llm.Provider) Option {
	return func(g *Generator) { g.llm = p }
}

// WithBreaker guards the provider with cb. Calls are skipped while it is open.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(g *Generator) { g.breaker = cb }
}

// WithTimeout overrides [DefaultTimeout]. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMetrics records generation metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a [Generator].
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		timeout:     DefaultTimeout,
		temperature: DefaultTemperature,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Online reports whether a remote provider is configured.
func (g *Generator) Online() bool { return g.llm != nil }

// NewSeed returns a fresh random seed for one call attempt.
func NewSeed() string { return uuid.NewString() }

// GenerateCallScript returns the dialog for a call from persona. The mode and
// seed are passed to the model to vary the wording; the seed alone selects
// the offline template.
func (g *Generator) GenerateCallScript(ctx context.Context, persona types.Persona, mode types.CallMode, seed string) []types.ScriptTurn {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "script.GenerateCallScript")
	defer span.End()

	turns, reason := g.remoteCallScript(ctx, persona, mode, seed)
	source := "llm"
	if reason != reasonNone {
		source = "offline"
		turns = OfflineCallScript(persona, seed)
	}

	span.SetAttributes(
		attribute.String("persona", persona.DisplayName),
		attribute.String("source", source),
		attribute.String("fallback_reason", reason),
		attribute.Int("turns", len(turns)),
	)
	g.metrics.RecordScriptGeneration(ctx, "call", source, reason, time.Since(start))
	observe.Logger(ctx).Debug("call script generated",
		"persona", persona.DisplayName,
		"source", source,
		"reason", reason,
		"turns", len(turns),
	)
	return turns
}

// GenerateMessageText returns the body of a fake text message from persona.
func (g *Generator) GenerateMessageText(ctx context.Context, persona types.Persona, seed string) string {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "script.GenerateMessageText")
	defer span.End()

	text, reason := g.remoteMessage(ctx, persona, seed)
	source := "llm"
	if reason != reasonNone {
		source = "offline"
		text = OfflineMessage(persona, seed)
	}

	span.SetAttributes(
		attribute.String("persona", persona.DisplayName),
		attribute.String("source", source),
		attribute.String("fallback_reason", reason),
	)
	g.metrics.RecordScriptGeneration(ctx, "message", source, reason, time.Since(start))
	return text
}

func (g *Generator) remoteCallScript(ctx context.Context, persona types.Persona, mode types.CallMode, seed string) ([]types.ScriptTurn, string) {
	content, reason := g.complete(ctx, callSystemPrompt, callPrompt(persona, mode, seed), true)
	if reason != reasonNone {
		return nil, reason
	}
	turns, err := ParseTurns(content)
	if err != nil {
		slog.Warn("script: unusable call script from llm", "err", err)
		return nil, reasonBadJSON
	}
	if len(turns) < minTurns {
		return nil, reasonTooFew
	}
	return turns, reasonNone
}

func (g *Generator) remoteMessage(ctx context.Context, persona types.Persona, seed string) (string, string) {
	content, reason := g.complete(ctx, messageSystemPrompt, messagePrompt(persona, seed), false)
	if reason != reasonNone {
		return "", reason
	}
	text := strings.TrimSpace(messageNoise.ReplaceAllString(content, ""))
	if text == "" {
		return "", reasonEmpty
	}
	return text, reasonNone
}

// complete runs one bounded completion and classifies any failure.
func (g *Generator) complete(ctx context.Context, system, user string, asJSON bool) (string, string) {
	if g.llm == nil {
		return "", reasonNoProvider
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
		Temperature:  g.temperature,
		JSON:         asJSON,
	}

	var resp *llm.CompletionResponse
	call := func() error {
		var err error
		resp, err = g.llm.Complete(ctx, req)
		return err
	}
	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call)
	} else {
		err = call()
	}

	switch {
	case err == nil:
		return resp.Text(), reasonNone
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "", reasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("script: llm timed out", "timeout", g.timeout)
		return "", reasonTimeout
	default:
		slog.Warn("script: llm request failed", "err", err)
		return "", reasonError
	}
}

func callPrompt(p types.Persona, mode types.CallMode, seed string) string {
	return strings.Join([]string{
		fmt.Sprintf("Persona: %s (%s)", p.DisplayName, p.RelationshipType),
		"Theme: " + Theme(p),
		"Mode: " + string(mode),
		fmt.Sprintf("Seed: %s (use it to vary wording)", seed),
		`Return JSON: {"turns":[{"speaker":"Caller|You","text":"...","pauseMs":300}]}.`,
		"3-5 turns, each line under 140 characters, urgent but believable.",
	}, "\n")
}

func messagePrompt(p types.Persona, seed string) string {
	return strings.Join([]string{
		fmt.Sprintf("Persona: %s (%s)", p.DisplayName, p.RelationshipType),
		"Theme: " + Theme(p),
		fmt.Sprintf("Seed: %s (use it to vary wording)", seed),
		"Return a single sentence under 180 characters.",
	}, "\n")
}

type wireTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	PauseMs *int   `json:"pauseMs"`
}

// ParseTurns decodes a model reply of the form {"turns":[...]}, tolerating
// Markdown code fences. Turns are trimmed, empty ones dropped, and any speaker
// other than "Caller" becomes "You".
func ParseTurns(content string) ([]types.ScriptTurn, error) {
	cleaned := strings.TrimSpace(callFence.ReplaceAllString(content, ""))
	var payload struct {
		Turns *[]wireTurn `json:"turns"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("script: decode turns: %w", err)
	}
	if payload.Turns == nil {
		return nil, errors.New("script: reply has no turns array")
	}
	turns := make([]types.ScriptTurn, 0, len(*payload.Turns))
	for _, t := range *payload.Turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		speaker := types.SpeakerYou
		if t.Speaker == string(types.SpeakerCaller) {
			speaker = types.SpeakerCaller
		}
		turns = append(turns, types.ScriptTurn{Speaker: speaker, Text: text, PauseMs: t.PauseMs})
	}
	return turns, nil
}

// BuildTeleprompterText renders turns as "Speaker: text" paragraphs separated
// by blank lines.
func BuildTeleprompterText(turns []types.ScriptTurn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = string(t.Speaker) + ": " + t.Text
	}
	return strings.Join(lines, "\n\n")
}
