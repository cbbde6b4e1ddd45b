// Package api serves the JSON control surface of awkwardescape.
//
// Every trigger of the service is reachable over HTTP so any front end can
// drive it: ringing, answering and ending calls, the mode-dependent escape,
// fake messages, persona and settings management and the voice guard. Call
// state changes are also streamed over a websocket at GET /v1/events.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/MrWong99/awkwardescape/internal/app"
	"github.com/MrWong99/awkwardescape/internal/call"
	"github.com/MrWong99/awkwardescape/internal/mic"
	"github.com/MrWong99/awkwardescape/internal/notify"
	"github.com/MrWong99/awkwardescape/internal/settings"
	"github.com/MrWong99/awkwardescape/internal/status"
	"github.com/MrWong99/awkwardescape/internal/voiceguard"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Service is the application the API drives. It is satisfied by *app.App.
type Service interface {
	Call() call.Session
	OnCallChange(fn func(call.Session)) (unsubscribe func())
	Ring(ctx context.Context, personaID string) error
	Answer(ctx context.Context, personaID string) (bool, error)
	Decline(ctx context.Context) bool
	End(ctx context.Context) bool
	ToggleMute(ctx context.Context) bool
	ToggleSpeaker(ctx context.Context) bool

	Escape(ctx context.Context) (app.EscapeResult, error)
	SendMessage(ctx context.Context, personaID string) (bool, error)
	Messages() []notify.Message

	VoiceGuard() voiceguard.Snapshot
	StartVoiceGuard(ctx context.Context, variant voiceguard.Variant) error
	StopVoiceGuard() bool

	MicLevel() float64
	MicCheck(ctx context.Context) (mic.VoiceResult, error)
	SetSimulatedLevel(db float64) bool

	Status() (status.Note, bool)
	Settings() *settings.Store
}

var _ Service = (*app.App)(nil)

// Server routes API requests to a [Service].
type Server struct {
	svc Service
	mux *http.ServeMux
}

// New creates a [Server] with all /v1 routes registered.
func New(svc Service) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Mux returns the underlying mux so callers can add routes such as the
// health probes and /metrics before wrapping it in middleware.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// ServeHTTP implements [http.Handler]. Panics in handlers are answered with
// 500 and logged.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("api: panic serving request", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}()
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	m := s.mux

	m.HandleFunc("GET /v1/call", s.handleCall)
	m.HandleFunc("POST /v1/call/ring", s.handleRing)
	m.HandleFunc("POST /v1/call/answer", s.handleAnswer)
	m.HandleFunc("POST /v1/call/decline", s.handleDecline)
	m.HandleFunc("POST /v1/call/end", s.handleEnd)
	m.HandleFunc("POST /v1/call/mute", s.handleMute)
	m.HandleFunc("POST /v1/call/speaker", s.handleSpeaker)
	m.HandleFunc("GET /v1/events", s.handleEvents)

	m.HandleFunc("POST /v1/escape", s.handleEscape)
	m.HandleFunc("POST /v1/message", s.handleMessage)
	m.HandleFunc("GET /v1/messages", s.handleMessages)

	m.HandleFunc("GET /v1/personas", s.handlePersonas)
	m.HandleFunc("POST /v1/personas", s.handleAddPersona)
	m.HandleFunc("DELETE /v1/personas/{id}", s.handleDeletePersona)
	m.HandleFunc("PUT /v1/personas/selected", s.handleSelectPersona)
	m.HandleFunc("PUT /v1/personas/{id}/voice", s.handlePersonaVoice)

	m.HandleFunc("GET /v1/settings", s.handleSettings)
	m.HandleFunc("PUT /v1/settings/mode", s.handleSetMode)
	m.HandleFunc("PUT /v1/settings/voice", s.handleSetVoice)
	m.HandleFunc("PUT /v1/settings/voiceguard", s.handleSetVoiceGuard)
	m.HandleFunc("GET /v1/voices", s.handleVoices)

	m.HandleFunc("GET /v1/voiceguard", s.handleVoiceGuard)
	m.HandleFunc("POST /v1/voiceguard/start", s.handleVoiceGuardStart)
	m.HandleFunc("POST /v1/voiceguard/stop", s.handleVoiceGuardStop)

	m.HandleFunc("GET /v1/mic", s.handleMic)
	m.HandleFunc("PUT /v1/mic/level", s.handleMicLevel)
	m.HandleFunc("POST /v1/mic/detect", s.handleMicDetect)

	m.HandleFunc("GET /v1/status", s.handleStatus)
}
