// Package types holds the domain values shared by every awkwardescape
// component: personas, call modes, call states and script turns.
//
// The package has no dependencies beyond the standard library so that
// provider adapters and external tooling can import it freely.
package types

import (
	"fmt"
	"strings"
	"time"
)

// RelationshipType describes how a persona relates to the user. It selects
// the role phrase used in prompts and the offline template library.
type RelationshipType string

const (
	RelationshipBoss     RelationshipType = "boss"
	RelationshipParent   RelationshipType = "parent"
	RelationshipSibling  RelationshipType = "sibling"
	RelationshipFriend   RelationshipType = "friend"
	RelationshipLandlord RelationshipType = "landlord"
	RelationshipPartner  RelationshipType = "partner"
	RelationshipOther    RelationshipType = "other"
)

// Relationships lists every valid [RelationshipType] in display order.
var Relationships = []RelationshipType{
	RelationshipBoss,
	RelationshipParent,
	RelationshipSibling,
	RelationshipFriend,
	RelationshipLandlord,
	RelationshipPartner,
	RelationshipOther,
}

// IsValid reports whether r is one of the known relationship types.
func (r RelationshipType) IsValid() bool {
	for _, known := range Relationships {
		if r == known {
			return true
		}
	}
	return false
}

// Label returns the capitalised display label, e.g. "Landlord".
func (r RelationshipType) Label() string {
	if r == "" {
		return "Other"
	}
	s := string(r)
	return strings.ToUpper(s[:1]) + s[1:]
}

// Role returns the phrase used to describe the caller to the user,
// e.g. "your boss" or "the landlord". Unknown values map to "someone close".
func (r RelationshipType) Role() string {
	switch r {
	case RelationshipBoss:
		return "your boss"
	case RelationshipParent:
		return "your parent"
	case RelationshipSibling:
		return "your sibling"
	case RelationshipFriend:
		return "your friend"
	case RelationshipLandlord:
		return "the landlord"
	case RelationshipPartner:
		return "your partner"
	default:
		return "someone close"
	}
}

// Persona is a fictitious caller profile.
type Persona struct {
	ID               string           `json:"id"`
	DisplayName      string           `json:"displayName"`
	RelationshipType RelationshipType `json:"relationshipType"`
	DefaultTheme     string           `json:"defaultTheme"`

	// VoiceID is the preferred synthesis voice. Empty means the global
	// settings voice is used.
	VoiceID string `json:"voiceId,omitempty"`
}

// Validate checks the fields a persona needs to be usable in a call.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("persona: id is required")
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("persona %q: display name is required", p.ID)
	}
	if !p.RelationshipType.IsValid() {
		return fmt.Errorf("persona %q: unknown relationship type %q", p.ID, p.RelationshipType)
	}
	return nil
}

// CallMode is the trigger style that started a fake call.
type CallMode string

const (
	// ModeInstantCall rings immediately after the escape gesture.
	ModeInstantCall CallMode = "instant_call"

	// ModeVoiceGuard rings when the microphone detects prolonged silence.
	ModeVoiceGuard CallMode = "voice_guard"

	// ModeSilentMessage schedules a fake text message notification instead
	// of ringing.
	ModeSilentMessage CallMode = "silent_message"
)

// IsValid reports whether m is a known mode.
func (m CallMode) IsValid() bool {
	switch m {
	case ModeInstantCall, ModeVoiceGuard, ModeSilentMessage:
		return true
	}
	return false
}

// CallStatus is the phase of the call lifecycle.
type CallStatus int

const (
	StatusIdle CallStatus = iota
	StatusRinging
	StatusAnswered
	StatusEnded
)

// String returns the lowercase status name used in logs and the HTTP API.
func (s CallStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRinging:
		return "ringing"
	case StatusAnswered:
		return "answered"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s CallStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]. It accepts the names
// produced by [CallStatus.String] and rejects anything else.
func (s *CallStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "ringing":
		*s = StatusRinging
	case "answered":
		*s = StatusAnswered
	case "ended":
		*s = StatusEnded
	default:
		return fmt.Errorf("types: unknown call status %q", text)
	}
	return nil
}

// Speaker identifies who says a script line.
type Speaker string

const (
	SpeakerCaller Speaker = "Caller"
	SpeakerYou    Speaker = "You"
)

// DefaultPause is the silence inserted after a turn that does not carry its
// own pause.
const DefaultPause = 500 * time.Millisecond

// ScriptTurn is one line of fake dialog.
type ScriptTurn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`

	// PauseMs is the silence after the line. Nil selects [DefaultPause];
	// an explicit zero means no pause.
	PauseMs *int `json:"pauseMs,omitempty"`
}

// Pause returns the pause that follows the turn.
func (t ScriptTurn) Pause() time.Duration {
	if t.PauseMs == nil {
		return DefaultPause
	}
	if *t.PauseMs <= 0 {
		return 0
	}
	return time.Duration(*t.PauseMs) * time.Millisecond
}
