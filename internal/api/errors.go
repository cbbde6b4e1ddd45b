package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/awkwardescape/internal/app"
	"github.com/MrWong99/awkwardescape/internal/settings"
	"github.com/MrWong99/awkwardescape/internal/voiceguard"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, settings.ErrPersonaNotFound):
		return http.StatusNotFound
	case errors.Is(err, settings.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, settings.ErrLastPersona),
		errors.Is(err, app.ErrNoPersona),
		errors.Is(err, app.ErrMicBusy):
		return http.StatusConflict
	case errors.Is(err, voiceguard.ErrPermissionDenied):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeServiceError answers with the status mapped from err. Unmapped
// errors are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: encode response", "err", err)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
	return false
}
