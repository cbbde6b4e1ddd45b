// Package settings persists the user's personas and preferences.
//
// The whole state is one versioned JSON document stored under [Key] through
// a [Backend]. Older document shapes are upgraded by [Migrate] when the
// [Store] opens, so the rest of the program only ever sees the current
// [State].
package settings

import (
	"slices"
	"time"

	"github.com/MrWong99/awkwardescape/pkg/provider/tts"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

// Key is the name the settings document is stored under.
const Key = "awkwardescape-settings"

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 2

// Defaults substituted for missing fields.
const (
	DefaultMode                    = types.ModeInstantCall
	DefaultVoiceGuardWindowMinutes = 30
	DefaultVoiceGuardSilenceMs     = 7000
	DefaultVoiceGuardDBThreshold   = -40.0
)

// DefaultPersonas are installed on first run and whenever the stored list
// is empty.
var DefaultPersonas = []types.Persona{
	{
		ID:               "0a0f6e35-0b4b-4215-9c08-0c5d9bc7b709",
		DisplayName:      "Strict Boss",
		RelationshipType: types.RelationshipBoss,
		DefaultTheme:     "urgent work update",
		VoiceID:          "en-US-Standard-B",
	},
	{
		ID:               "2c1e9c1b-6b9a-4e16-86fe-1b4dd6a04e8e",
		DisplayName:      "Panicked Roommate",
		RelationshipType: types.RelationshipFriend,
		DefaultTheme:     "locked out of the apartment",
		VoiceID:          "en-US-Standard-C",
	},
	{
		ID:               "0e3b0f2a-94f2-49b5-8aa8-8d4cfd8434ac",
		DisplayName:      "The Landlord",
		RelationshipType: types.RelationshipLandlord,
		DefaultTheme:     "water leak at home",
		VoiceID:          "en-US-Standard-D",
	},
	{
		ID:               "f7f1d6a2-4c15-4b38-a147-41ac750c2db4",
		DisplayName:      "School Admin",
		RelationshipType: types.RelationshipParent,
		DefaultTheme:     "child pickup",
		VoiceID:          "en-US-Standard-E",
	},
}

// State is the persisted settings document.
type State struct {
	Version                 int             `json:"version"`
	Personas                []types.Persona `json:"personas"`
	SelectedPersonaID       string          `json:"selectedPersonaId"`
	Mode                    types.CallMode  `json:"mode"`
	VoiceID                 string          `json:"voiceId"`
	VoiceGuardWindowMinutes int             `json:"voiceGuardWindowMinutes"`
	VoiceGuardSilenceMs     int             `json:"voiceGuardSilenceMs"`
	VoiceGuardDBThreshold   float64         `json:"voiceGuardDbThreshold"`
}

// DefaultState returns the state of a fresh install.
func DefaultState() State {
	personas := slices.Clone(DefaultPersonas)
	return State{
		Version:                 CurrentVersion,
		Personas:                personas,
		SelectedPersonaID:       personas[0].ID,
		Mode:                    DefaultMode,
		VoiceID:                 tts.DefaultVoiceID,
		VoiceGuardWindowMinutes: DefaultVoiceGuardWindowMinutes,
		VoiceGuardSilenceMs:     DefaultVoiceGuardSilenceMs,
		VoiceGuardDBThreshold:   DefaultVoiceGuardDBThreshold,
	}
}

// Selected returns the selected persona. It falls back to the first
// persona when the selection is stale.
func (s State) Selected() (types.Persona, bool) {
	if p, ok := s.Persona(s.SelectedPersonaID); ok {
		return p, true
	}
	if len(s.Personas) > 0 {
		return s.Personas[0], true
	}
	return types.Persona{}, false
}

// Persona looks up a persona by id.
func (s State) Persona(id string) (types.Persona, bool) {
	i := s.index(id)
	if i < 0 {
		return types.Persona{}, false
	}
	return s.Personas[i], true
}

// VoiceGuardWindow returns the listening window as a duration.
func (s State) VoiceGuardWindow() time.Duration {
	return time.Duration(s.VoiceGuardWindowMinutes) * time.Minute
}

// VoiceGuardSilence returns the required quiet run as a duration.
func (s State) VoiceGuardSilence() time.Duration {
	return time.Duration(s.VoiceGuardSilenceMs) * time.Millisecond
}

func (s State) index(id string) int {
	return slices.IndexFunc(s.Personas, func(p types.Persona) bool { return p.ID == id })
}

func (s State) clone() State {
	s.Personas = slices.Clone(s.Personas)
	return s
}

// normalize enforces the invariants every loaded or mutated state holds: at
// least one persona, a selection that exists, and no empty defaults.
func (s *State) normalize() {
	s.Version = CurrentVersion
	if len(s.Personas) == 0 {
		s.Personas = slices.Clone(DefaultPersonas)
	}
	if s.index(s.SelectedPersonaID) < 0 {
		s.SelectedPersonaID = s.Personas[0].ID
	}
	if !s.Mode.IsValid() {
		s.Mode = DefaultMode
	}
	if s.VoiceID == "" {
		s.VoiceID = tts.DefaultVoiceID
	}
	if s.VoiceGuardWindowMinutes <= 0 {
		s.VoiceGuardWindowMinutes = DefaultVoiceGuardWindowMinutes
	}
	if s.VoiceGuardSilenceMs <= 0 {
		s.VoiceGuardSilenceMs = DefaultVoiceGuardSilenceMs
	}
	for i := range s.Personas {
		if s.Personas[i].VoiceID == "" {
			s.Personas[i].VoiceID = s.VoiceID
		}
	}
}
