package api

import (
	"math"
	"net/http"
	"time"

	"github.com/MrWong99/awkwardescape/internal/voiceguard"
	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

// personaRequest names the persona a trigger should use. An empty id uses
// the selected persona.
type personaRequest struct {
	PersonaID string `json:"personaId"`
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

type answerResponse struct {
	Answered bool `json:"answered"`
}

type messageResponse struct {
	Scheduled bool `json:"scheduled"`
}

type escapeResponse struct {
	Mode      types.CallMode `json:"mode"`
	Scheduled bool           `json:"scheduled,omitempty"`
}

// ---- call ----

func (s *Server) handleCall(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Call())
}

func (s *Server) handleRing(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if !decode(w, r, &req, true) {
		return
	}
	if err := s.svc.Ring(r.Context(), req.PersonaID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Call())
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if !decode(w, r, &req, true) {
		return
	}
	ok, err := s.svc.Answer(r.Context(), req.PersonaID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Answered: ok})
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, changedResponse{Changed: s.svc.Decline(r.Context())})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, changedResponse{Changed: s.svc.End(r.Context())})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	s.svc.ToggleMute(r.Context())
	writeJSON(w, http.StatusOK, s.svc.Call())
}

func (s *Server) handleSpeaker(w http.ResponseWriter, r *http.Request) {
	s.svc.ToggleSpeaker(r.Context())
	writeJSON(w, http.StatusOK, s.svc.Call())
}

// ---- escape and messages ----

func (s *Server) handleEscape(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Escape(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, escapeResponse{Mode: res.Mode, Scheduled: res.Scheduled})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if !decode(w, r, &req, true) {
		return
	}
	ok, err := s.svc.SendMessage(r.Context(), req.PersonaID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Scheduled: ok})
}

func (s *Server) handleMessages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Messages())
}

// ---- personas ----

type personasResponse struct {
	Personas   []types.Persona `json:"personas"`
	SelectedID string          `json:"selectedId"`
}

func (s *Server) personas() personasResponse {
	st := s.svc.Settings().State()
	return personasResponse{Personas: st.Personas, SelectedID: st.SelectedPersonaID}
}

func (s *Server) handlePersonas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.personas())
}

type addPersonaRequest struct {
	DisplayName      string                 `json:"displayName"`
	RelationshipType types.RelationshipType `json:"relationshipType"`
	DefaultTheme     string                 `json:"defaultTheme"`
	VoiceID          string                 `json:"voiceId"`
}

func (s *Server) handleAddPersona(w http.ResponseWriter, r *http.Request) {
	var req addPersonaRequest
	if !decode(w, r, &req, false) {
		return
	}
	p, err := s.svc.Settings().AddPersona(r.Context(), types.Persona{
		DisplayName:      req.DisplayName,
		RelationshipType: req.RelationshipType,
		DefaultTheme:     req.DefaultTheme,
		VoiceID:          req.VoiceID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Settings().DeletePersona(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.personas())
}

type selectPersonaRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	var req selectPersonaRequest
	if !decode(w, r, &req, false) {
		return
	}
	if err := s.svc.Settings().SelectPersona(r.Context(), req.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.personas())
}

type voiceRequest struct {
	VoiceID string `json:"voiceId"`
}

func (s *Server) handlePersonaVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if !decode(w, r, &req, false) {
		return
	}
	if err := s.svc.Settings().SetPersonaVoice(r.Context(), r.PathValue("id"), req.VoiceID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.personas())
}

// ---- settings ----

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Settings().State())
}

type modeRequest struct {
	Mode types.CallMode `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decode(w, r, &req, false) {
		return
	}
	if err := s.svc.Settings().SetMode(r.Context(), req.Mode); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Settings().State())
}

func (s *Server) handleSetVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if !decode(w, r, &req, false) {
		return
	}
	if err := s.svc.Settings().SetVoiceID(r.Context(), req.VoiceID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Settings().State())
}

// voiceGuardSettingsRequest changes any subset of the voice-guard settings.
// Fields are applied in order and the first invalid one stops the update.
type voiceGuardSettingsRequest struct {
	WindowMinutes *int     `json:"windowMinutes"`
	SilenceMs     *int     `json:"silenceMs"`
	DBThreshold   *float64 `json:"dbThreshold"`
}

func (s *Server) handleSetVoiceGuard(w http.ResponseWriter, r *http.Request) {
	var req voiceGuardSettingsRequest
	if !decode(w, r, &req, false) {
		return
	}
	store := s.svc.Settings()
	var err error
	if req.WindowMinutes != nil {
		err = store.SetVoiceGuardWindowMinutes(r.Context(), *req.WindowMinutes)
	}
	if err == nil && req.SilenceMs != nil {
		err = store.SetVoiceGuardSilenceMs(r.Context(), *req.SilenceMs)
	}
	if err == nil && req.DBThreshold != nil {
		err = store.SetVoiceGuardDBThreshold(r.Context(), *req.DBThreshold)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.State())
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tts.Catalogue)
}

// ---- voice guard ----

type voiceGuardResponse struct {
	Active           bool               `json:"active"`
	Variant          voiceguard.Variant `json:"variant,omitempty"`
	WindowTotalMs    int64              `json:"windowTotalMs"`
	ElapsedMs        int64              `json:"elapsedMs"`
	RemainingMs      int64              `json:"remainingMs"`
	SilenceElapsedMs int64              `json:"silenceElapsedMs"`
	MeterDB          float64            `json:"meterDb"`
	LastOutcome      voiceguard.Outcome `json:"lastOutcome,omitempty"`
}

func newVoiceGuardResponse(s voiceguard.Snapshot) voiceGuardResponse {
	return voiceGuardResponse{
		Active:           s.Active,
		Variant:          s.Variant,
		WindowTotalMs:    s.WindowTotal.Milliseconds(),
		ElapsedMs:        s.Elapsed.Milliseconds(),
		RemainingMs:      max(s.WindowTotal-s.Elapsed, 0).Milliseconds(),
		SilenceElapsedMs: s.SilenceElapsed.Milliseconds(),
		MeterDB:          s.MeterDB,
		LastOutcome:      s.LastOutcome,
	}
}

func (s *Server) handleVoiceGuard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newVoiceGuardResponse(s.svc.VoiceGuard()))
}

type startVoiceGuardRequest struct {
	Variant voiceguard.Variant `json:"variant"`
}

func (s *Server) handleVoiceGuardStart(w http.ResponseWriter, r *http.Request) {
	var req startVoiceGuardRequest
	if !decode(w, r, &req, true) {
		return
	}
	if req.Variant != "" && req.Variant != voiceguard.VariantSilence && req.Variant != voiceguard.VariantVoice {
		writeError(w, http.StatusBadRequest, "variant must be silence or voice")
		return
	}
	if err := s.svc.StartVoiceGuard(r.Context(), req.Variant); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVoiceGuardResponse(s.svc.VoiceGuard()))
}

func (s *Server) handleVoiceGuardStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, changedResponse{Changed: s.svc.StopVoiceGuard()})
}

// ---- microphone and status ----

type micResponse struct {
	LevelDB float64 `json:"levelDb"`
}

func (s *Server) handleMic(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, micResponse{LevelDB: s.svc.MicLevel()})
}

type micLevelRequest struct {
	LevelDB *float64 `json:"levelDb"`
}

func (s *Server) handleMicLevel(w http.ResponseWriter, r *http.Request) {
	var req micLevelRequest
	if !decode(w, r, &req, false) {
		return
	}
	if req.LevelDB == nil || math.IsNaN(*req.LevelDB) || *req.LevelDB > 0 {
		writeError(w, http.StatusBadRequest, "levelDb must be a number at or below 0")
		return
	}
	if !s.svc.SetSimulatedLevel(*req.LevelDB) {
		writeError(w, http.StatusConflict, "microphone level is only adjustable on the headless backend")
		return
	}
	writeJSON(w, http.StatusOK, micResponse{LevelDB: *req.LevelDB})
}

type micCheckResponse struct {
	PermissionGranted bool `json:"permissionGranted"`
	VoiceDetected     bool `json:"voiceDetected"`
}

func (s *Server) handleMicDetect(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.MicCheck(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, micCheckResponse{PermissionGranted: res.PermissionGranted, VoiceDetected: res.VoiceDetected})
}

type statusResponse struct {
	Message   string    `json:"message,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	n, ok := s.svc.Status()
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Message: n.Message, ExpiresAt: n.ExpiresAt})
}
