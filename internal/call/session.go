package call

import (
	"time"

	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

// Session is a point-in-time copy of the call state.
type Session struct {
	Status  types.CallStatus `json:"status"`
	Mode    types.CallMode   `json:"mode,omitempty"`
	Persona *types.Persona   `json:"persona,omitempty"`

	Script       []types.ScriptTurn `json:"script"`
	Teleprompter string             `json:"teleprompter"`
	ActiveLine   int                `json:"activeLine"`

	// StartedAt is set when the call is answered.
	StartedAt time.Time `json:"startedAt,omitzero"`

	// ElapsedMs is the answered call's running duration.
	ElapsedMs int64 `json:"elapsedMs"`

	MicLevel  float64 `json:"micLevel"`
	Muted     bool    `json:"muted"`
	SpeakerOn bool    `json:"speakerOn"`

	// Generation increases with every transition that starts or clears a
	// call. Work started for an older generation must not touch the state.
	Generation uint64 `json:"generation"`
}

// Active reports whether a call is ringing or answered.
func (s Session) Active() bool {
	return s.Status == types.StatusRinging || s.Status == types.StatusAnswered
}

func (s Session) clone() Session {
	out := s
	if s.Persona != nil {
		p := *s.Persona
		out.Persona = &p
	}
	out.Script = make([]types.ScriptTurn, len(s.Script))
	copy(out.Script, s.Script)
	return out
}

// blank returns the cleared state used by idle and ended calls.
func blank(status types.CallStatus, gen uint64) Session {
	return Session{
		Status:     status,
		Script:     []types.ScriptTurn{},
		MicLevel:   audio.FloorDB,
		SpeakerOn:  true,
		Generation: gen,
	}
}
