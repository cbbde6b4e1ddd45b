package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/MrWong99/awkwardescape/pkg/types"
)

// document accepts every shape the settings have been stored in:
//
//   - v0: {"mode":"call"|"message","personaId":"panicked-roommate"}
//   - v1: {"personas":[...],"selectedPersonaId":"...","voiceId":"...",...}
//     without a mode, optionally wrapped as {"state":{...},"version":0}
//   - v2: the current [State]
type document struct {
	Version *int            `json:"version"`
	State   json.RawMessage `json:"state"`

	Personas          []types.Persona `json:"personas"`
	SelectedPersonaID string          `json:"selectedPersonaId"`
	Mode              string          `json:"mode"`
	PersonaID         string          `json:"personaId"`
	VoiceID           string          `json:"voiceId"`

	VoiceGuardWindowMinutes int      `json:"voiceGuardWindowMinutes"`
	VoiceGuardSilenceMs     int      `json:"voiceGuardSilenceMs"`
	VoiceGuardDBThreshold   *float64 `json:"voiceGuardDbThreshold"`
}

// Migrate decodes a stored settings document of any known version and
// returns it as a current, normalized [State]. changed reports whether the
// result differs in shape from data and should be written back. Empty data
// yields [DefaultState].
func Migrate(data []byte) (s State, changed bool, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return DefaultState(), true, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return State{}, false, fmt.Errorf("settings: decode: %w", err)
	}
	if len(doc.State) > 0 && doc.Personas == nil && doc.PersonaID == "" {
		// Persisted-store envelope; its version is the envelope's, not ours.
		var inner document
		if err := json.Unmarshal(doc.State, &inner); err != nil {
			return State{}, false, fmt.Errorf("settings: decode envelope: %w", err)
		}
		doc = inner
		doc.Version = nil
		changed = true
	}

	version := doc.version()
	if version > CurrentVersion {
		return State{}, false, fmt.Errorf("settings: unsupported version %d", version)
	}
	if version != CurrentVersion {
		changed = true
	}

	switch version {
	case 0:
		s = migrateV0(doc)
	default:
		s = migrateV1(doc)
	}
	s.normalize()
	return s, changed, nil
}

func (d document) version() int {
	switch {
	case d.Version != nil:
		return *d.Version
	case d.Personas != nil || d.SelectedPersonaID != "":
		return 1
	default:
		return 0
	}
}

// migrateV0 maps the single-persona shape onto the default personas.
func migrateV0(d document) State {
	s := DefaultState()
	s.Mode = legacyMode(d.Mode)
	if d.PersonaID != "" {
		for _, p := range s.Personas {
			if p.ID == d.PersonaID || slug(p.DisplayName) == d.PersonaID {
				s.SelectedPersonaID = p.ID
				break
			}
		}
	}
	return s
}

// migrateV1 covers v1 and v2: v1 only lacks the mode.
func migrateV1(d document) State {
	s := State{
		Personas:                d.Personas,
		SelectedPersonaID:       d.SelectedPersonaID,
		Mode:                    legacyMode(d.Mode),
		VoiceID:                 d.VoiceID,
		VoiceGuardWindowMinutes: d.VoiceGuardWindowMinutes,
		VoiceGuardSilenceMs:     d.VoiceGuardSilenceMs,
		VoiceGuardDBThreshold:   DefaultVoiceGuardDBThreshold,
	}
	if d.VoiceGuardDBThreshold != nil {
		s.VoiceGuardDBThreshold = *d.VoiceGuardDBThreshold
	}
	for i := range s.Personas {
		if s.Personas[i].ID == "" {
			s.Personas[i].ID = uuid.NewString()
		}
		if !s.Personas[i].RelationshipType.IsValid() {
			s.Personas[i].RelationshipType = types.RelationshipOther
		}
	}
	return s
}

// legacyMode maps both mode enums onto [types.CallMode].
func legacyMode(m string) types.CallMode {
	switch m {
	case "call":
		return types.ModeInstantCall
	case "message":
		return types.ModeSilentMessage
	}
	if mode := types.CallMode(m); mode.IsValid() {
		return mode
	}
	return DefaultMode
}

// slug turns "Panicked Roommate" into "panicked-roommate".
func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
