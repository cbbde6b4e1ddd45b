package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/MrWong99/awkwardescape/pkg/types"
)

func openStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	b := NewMemoryBackend()
	s, err := Open(context.Background(), b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, b
}

func TestOpen_WritesDefaults(t *testing.T) {
	t.Parallel()
	s, b := openStore(t)
	if b.Saves() != 1 {
		t.Errorf("Saves = %d, want 1", b.Saves())
	}
	p, ok := s.SelectedPersona()
	if !ok || p.ID != bossID {
		t.Errorf("SelectedPersona() = %+v, %v", p, ok)
	}

	// Reopening a current document does not rewrite it.
	if _, err := Open(context.Background(), b); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if b.Saves() != 1 {
		t.Errorf("Saves after reopen = %d, want 1", b.Saves())
	}
}

func TestOpen_MigratesLegacy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemoryBackend()
	if err := b.Save(ctx, Key, []byte(`{"mode":"message","personaId":"panicked-roommate"}`)); err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st := s.State(); st.Mode != types.ModeSilentMessage || st.SelectedPersonaID != roommateID {
		t.Errorf("State = %+v", st)
	}
	data, _ := b.Load(ctx, Key)
	if _, changed, _ := Migrate(data); changed {
		t.Error("migrated document was not written back")
	}
}

func TestAddPersona(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	ctx := context.Background()

	p, err := s.AddPersona(ctx, types.Persona{
		ID:               "ignored",
		DisplayName:      "  Aunt May ",
		RelationshipType: types.RelationshipParent,
		DefaultTheme:     " family dinner ",
	})
	if err != nil {
		t.Fatalf("AddPersona: %v", err)
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		t.Errorf("ID %q is not a UUID", p.ID)
	}
	if p.DisplayName != "Aunt May" || p.DefaultTheme != "family dinner" {
		t.Errorf("fields not trimmed: %+v", p)
	}
	if p.VoiceID != s.State().VoiceID {
		t.Errorf("VoiceID = %q, want the settings voice", p.VoiceID)
	}
	st := s.State()
	if st.Personas[0].ID != p.ID || st.SelectedPersonaID != p.ID {
		t.Errorf("new persona not first and selected: %+v", st)
	}
}

func TestAddPersona_Invalid(t *testing.T) {
	t.Parallel()
	s, b := openStore(t)
	_, err := s.AddPersona(context.Background(), types.Persona{DisplayName: "X", RelationshipType: "ex"})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("AddPersona() = %v, want ErrInvalidValue", err)
	}
	if b.Saves() != 1 || len(s.Personas()) != 4 {
		t.Error("invalid persona was stored")
	}
}

func TestDeletePersona(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	ctx := context.Background()

	if err := s.DeletePersona(ctx, "nope"); !errors.Is(err, ErrPersonaNotFound) {
		t.Errorf("DeletePersona(unknown) = %v", err)
	}
	if err := s.DeletePersona(ctx, bossID); err != nil {
		t.Fatalf("DeletePersona(selected): %v", err)
	}
	if st := s.State(); st.SelectedPersonaID != roommateID {
		t.Errorf("SelectedPersonaID = %q, want the new first persona", st.SelectedPersonaID)
	}

	for len(s.Personas()) > 1 {
		if err := s.DeletePersona(ctx, s.Personas()[0].ID); err != nil {
			t.Fatalf("DeletePersona: %v", err)
		}
	}
	last := s.Personas()[0]
	if err := s.DeletePersona(ctx, last.ID); !errors.Is(err, ErrLastPersona) {
		t.Errorf("DeletePersona(last) = %v, want ErrLastPersona", err)
	}
	if n := len(s.Personas()); n != 1 {
		t.Errorf("persona count = %d after rejected delete, want 1", n)
	}
}

func TestSelectAndVoice(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	ctx := context.Background()

	if err := s.SelectPersona(ctx, landlordID); err != nil {
		t.Fatalf("SelectPersona: %v", err)
	}
	if p, _ := s.SelectedPersona(); p.ID != landlordID {
		t.Errorf("selected %q", p.ID)
	}
	if err := s.SelectPersona(ctx, "nope"); !errors.Is(err, ErrPersonaNotFound) {
		t.Errorf("SelectPersona(unknown) = %v", err)
	}

	if err := s.SetPersonaVoice(ctx, landlordID, "en-US-Wavenet-D"); err != nil {
		t.Fatalf("SetPersonaVoice: %v", err)
	}
	if p, _ := s.State().Persona(landlordID); p.VoiceID != "en-US-Wavenet-D" {
		t.Errorf("VoiceID = %q", p.VoiceID)
	}
	if err := s.SetPersonaVoice(ctx, "nope", "x"); !errors.Is(err, ErrPersonaNotFound) {
		t.Errorf("SetPersonaVoice(unknown) = %v", err)
	}
	if err := s.SetVoiceID(ctx, " "); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetVoiceID(blank) = %v", err)
	}
}

func TestSetters_Validation(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		wantErr bool
	}{
		{"mode ok", func() error { return s.SetMode(ctx, types.ModeVoiceGuard) }, false},
		{"mode bad", func() error { return s.SetMode(ctx, "call") }, true},
		{"window ok", func() error { return s.SetVoiceGuardWindowMinutes(ctx, 5) }, false},
		{"window zero", func() error { return s.SetVoiceGuardWindowMinutes(ctx, 0) }, true},
		{"silence ok", func() error { return s.SetVoiceGuardSilenceMs(ctx, 3000) }, false},
		{"silence negative", func() error { return s.SetVoiceGuardSilenceMs(ctx, -1) }, true},
		{"threshold ok", func() error { return s.SetVoiceGuardDBThreshold(ctx, -50) }, false},
		{"threshold positive", func() error { return s.SetVoiceGuardDBThreshold(ctx, 3) }, true},
		{"threshold below floor", func() error { return s.SetVoiceGuardDBThreshold(ctx, -200) }, true},
	}
	for _, tt := range tests {
		err := tt.call()
		if tt.wantErr != errors.Is(err, ErrInvalidValue) {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}

	st := s.State()
	if st.Mode != types.ModeVoiceGuard || st.VoiceGuardWindowMinutes != 5 ||
		st.VoiceGuardSilenceMs != 3000 || st.VoiceGuardDBThreshold != -50 {
		t.Errorf("State = %+v", st)
	}
	if st.VoiceGuardWindow().Minutes() != 5 || st.VoiceGuardSilence().Seconds() != 3 {
		t.Errorf("durations = %v / %v", st.VoiceGuardWindow(), st.VoiceGuardSilence())
	}
}

func TestUpdate_SaveFailureKeepsState(t *testing.T) {
	t.Parallel()
	s, b := openStore(t)
	b.SaveErr = errors.New("disk full")

	err := s.SetMode(context.Background(), types.ModeSilentMessage)
	if err == nil || errors.Is(err, ErrInvalidValue) {
		t.Fatalf("SetMode() = %v, want a save error", err)
	}
	if s.State().Mode != DefaultMode {
		t.Error("failed save changed the state")
	}
}

func TestState_ReturnsCopy(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)
	st := s.State()
	st.Personas[0].DisplayName = "Mutated"
	if s.Personas()[0].DisplayName == "Mutated" {
		t.Error("State() exposes the internal slice")
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := openStore(t)
	p, err := s.AddPersona(ctx, types.Persona{DisplayName: "Coach", RelationshipType: types.RelationshipOther})
	if err != nil {
		t.Fatal(err)
	}

	again, err := Open(ctx, b)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got, ok := again.SelectedPersona(); !ok || got.ID != p.ID {
		t.Errorf("reopened selection = %+v, want %s", got, p.ID)
	}
}

func TestStore_Ping(t *testing.T) {
	t.Parallel()
	s, b := openStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	b.LoadErr = errors.New("disk gone")
	if err := s.Ping(context.Background()); !errors.Is(err, b.LoadErr) {
		t.Errorf("Ping = %v, want wrapped %v", err, b.LoadErr)
	}
}
