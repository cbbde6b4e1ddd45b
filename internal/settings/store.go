package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/awkwardescape/pkg/audio"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

var (
	// ErrLastPersona is returned when deleting the only remaining persona.
	ErrLastPersona = errors.New("settings: cannot delete the last persona")

	// ErrPersonaNotFound is returned for an unknown persona id.
	ErrPersonaNotFound = errors.New("settings: persona not found")

	// ErrInvalidValue is returned when a setter is given an unusable value.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Store is the authoritative in-memory copy of the settings, written through
// to a [Backend] on every change. A change that fails to persist is not
// applied.
//
// All methods are safe for concurrent use.
type Store struct {
	backend Backend

	mu    sync.Mutex
	state State
}

// Open loads and migrates the settings document from backend. A document
// that needed migration is written back immediately.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	data, err := backend.Load(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	state, changed, err := Migrate(data)
	if err != nil {
		return nil, err
	}
	s := &Store{backend: backend, state: state}
	if changed {
		if err := s.persist(ctx, state); err != nil {
			return nil, err
		}
		slog.Info("settings: migrated", "version", state.Version, "personas", len(state.Personas))
	}
	return s, nil
}

// Ping reports whether the backend can still be read.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.backend.Load(ctx, Key); err != nil {
		return fmt.Errorf("settings: ping: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// State returns a copy of the current settings.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SelectedPersona returns the selected persona.
func (s *Store) SelectedPersona() (types.Persona, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Selected()
}

// Personas returns every persona in display order.
func (s *Store) Personas() []types.Persona {
	return s.State().Personas
}

// AddPersona stores a new persona in front of the list and selects it. The
// id is always generated; an empty voice takes the settings voice.
func (s *Store) AddPersona(ctx context.Context, p types.Persona) (types.Persona, error) {
	p.ID = uuid.NewString()
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.DefaultTheme = strings.TrimSpace(p.DefaultTheme)
	if err := p.Validate(); err != nil {
		return types.Persona{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	err := s.update(ctx, func(st *State) error {
		if p.VoiceID == "" {
			p.VoiceID = st.VoiceID
		}
		st.Personas = append([]types.Persona{p}, st.Personas...)
		st.SelectedPersonaID = p.ID
		return nil
	})
	if err != nil {
		return types.Persona{}, err
	}
	return p, nil
}

// DeletePersona removes a persona. Deleting the selected persona selects
// the first remaining one.
func (s *Store) DeletePersona(ctx context.Context, id string) error {
	return s.update(ctx, func(st *State) error {
		i := st.index(id)
		if i < 0 {
			return ErrPersonaNotFound
		}
		if len(st.Personas) <= 1 {
			return ErrLastPersona
		}
		st.Personas = append(st.Personas[:i:i], st.Personas[i+1:]...)
		if st.SelectedPersonaID == id {
			st.SelectedPersonaID = st.Personas[0].ID
		}
		return nil
	})
}

// SelectPersona changes the selected persona.
func (s *Store) SelectPersona(ctx context.Context, id string) error {
	return s.update(ctx, func(st *State) error {
		if st.index(id) < 0 {
			return ErrPersonaNotFound
		}
		st.SelectedPersonaID = id
		return nil
	})
}

// SetPersonaVoice changes one persona's voice.
func (s *Store) SetPersonaVoice(ctx context.Context, id, voiceID string) error {
	if strings.TrimSpace(voiceID) == "" {
		return fmt.Errorf("%w: empty voice id", ErrInvalidValue)
	}
	return s.update(ctx, func(st *State) error {
		i := st.index(id)
		if i < 0 {
			return ErrPersonaNotFound
		}
		st.Personas[i].VoiceID = voiceID
		return nil
	})
}

// SetMode changes the escape mode.
func (s *Store) SetMode(ctx context.Context, mode types.CallMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: mode %q", ErrInvalidValue, mode)
	}
	return s.update(ctx, func(st *State) error {
		st.Mode = mode
		return nil
	})
}

// SetVoiceID changes the default voice.
func (s *Store) SetVoiceID(ctx context.Context, voiceID string) error {
	if strings.TrimSpace(voiceID) == "" {
		return fmt.Errorf("%w: empty voice id", ErrInvalidValue)
	}
	return s.update(ctx, func(st *State) error {
		st.VoiceID = voiceID
		return nil
	})
}

// SetVoiceGuardWindowMinutes changes the voice-guard listening window.
func (s *Store) SetVoiceGuardWindowMinutes(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: window %d min", ErrInvalidValue, minutes)
	}
	return s.update(ctx, func(st *State) error {
		st.VoiceGuardWindowMinutes = minutes
		return nil
	})
}

// SetVoiceGuardSilenceMs changes the quiet run that triggers a call.
func (s *Store) SetVoiceGuardSilenceMs(ctx context.Context, ms int) error {
	if ms <= 0 {
		return fmt.Errorf("%w: silence %d ms", ErrInvalidValue, ms)
	}
	return s.update(ctx, func(st *State) error {
		st.VoiceGuardSilenceMs = ms
		return nil
	})
}

// SetVoiceGuardDBThreshold changes the level below which the room counts
// as quiet. It must lie between [audio.FloorDB] and 0.
func (s *Store) SetVoiceGuardDBThreshold(ctx context.Context, db float64) error {
	if math.IsNaN(db) || db < audio.FloorDB || db > 0 {
		return fmt.Errorf("%w: threshold %g dB", ErrInvalidValue, db)
	}
	return s.update(ctx, func(st *State) error {
		st.VoiceGuardDBThreshold = db
		return nil
	})
}

// update applies fn to a copy of the state, persists it and commits it.
func (s *Store) update(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.normalize()
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) persist(ctx context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := s.backend.Save(ctx, Key, data); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}
