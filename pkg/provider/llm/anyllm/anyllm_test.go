package anyllm

import (
	"context"
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/awkwardescape/pkg/provider/llm"
)

func TestParams(t *testing.T) {
	p := &Provider{name: "groq", model: DefaultGroqModel}
	params := p.params(llm.CompletionRequest{
		SystemPrompt: "Output JSON only.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Persona: Strict Boss"}},
		Temperature:  0.7,
		JSON:         true,
	})

	if params.Model != DefaultGroqModel {
		t.Errorf("model = %q, want %q", params.Model, DefaultGroqModel)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("messages = %+v, want system then user", params.Messages)
	}
	if params.Messages[1].ContentString() != "Persona: Strict Boss" {
		t.Errorf("user content = %q", params.Messages[1].ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("max tokens set to %d without being requested", *params.MaxTokens)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend, model string
		wantModel      string
		wantErr        bool
	}{
		{backend: "groq", wantModel: DefaultGroqModel},
		{backend: " Mistral ", model: "open-mixtral", wantModel: "open-mixtral"},
		{backend: "openai", wantModel: "gpt-4o-mini"},
		{backend: "ollama", wantErr: true},
		{backend: "", model: "m", wantErr: true},
		{backend: "telepathy", model: "m", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, anyllmlib.WithAPIKey("test-key"))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Model() != tt.wantModel || p.backend == nil {
				t.Errorf("model %q backend %v", p.Model(), p.backend)
			}
		})
	}
}

func TestNewGroq(t *testing.T) {
	p, err := NewGroq("", anyllmlib.WithAPIKey("gsk-test"))
	if err != nil {
		t.Fatalf("NewGroq: %v", err)
	}
	if p.Backend() != "groq" || p.Model() != DefaultGroqModel {
		t.Errorf("backend %q model %q", p.Backend(), p.Model())
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p, _ := NewGroq("", anyllmlib.WithAPIKey("gsk-test"))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("expected an error for an empty request")
	}
}

func TestSupportedBackends(t *testing.T) {
	got := SupportedBackends()
	if len(got) != 9 || !slices.IsSorted(got) || !slices.Contains(got, "llamafile") {
		t.Errorf("SupportedBackends() = %v", got)
	}
}
