package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/awkwardescape/internal/api"
	"github.com/MrWong99/awkwardescape/internal/app"
	"github.com/MrWong99/awkwardescape/internal/config"
	notifymock "github.com/MrWong99/awkwardescape/internal/notify/mock"
	"github.com/MrWong99/awkwardescape/internal/settings"
	"github.com/MrWong99/awkwardescape/pkg/audio"
	audiomock "github.com/MrWong99/awkwardescape/pkg/audio/mock"
	"github.com/MrWong99/awkwardescape/pkg/types"
)

type fixture struct {
	app *app.App
	srv *api.Server
	rec *audiomock.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Settings: config.SettingsConfig{Backend: config.SettingsMemory},
		VoiceGuard: config.VoiceGuardConfig{
			SampleEvery: time.Millisecond,
			Tick:        time.Millisecond,
		},
	}
	config.ApplyDefaults(cfg)

	f := &fixture{rec: &audiomock.Recorder{Permission: true}}
	providers := &app.Providers{Audio: config.AudioPlatform{
		Devices: audio.Devices{
			Recorder:    f.rec,
			Player:      &audiomock.Player{},
			Router:      &audiomock.Router{},
			Vibrator:    &audiomock.Vibrator{},
			Synthesizer: &audiomock.Synthesizer{Hold: true},
		},
		SetLevel: f.rec.SetLevel,
	}}
	a, err := app.New(context.Background(), cfg, providers, app.WithNotifyBackend(&notifymock.Backend{Granted: true}))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	f.app = a
	f.srv = api.New(a)
	return f
}

// do sends a request with an optional JSON body and decodes the response
// into out when it is non-nil.
func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, r)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("%s %s: Content-Type = %q", method, path, ct)
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

type callBody struct {
	Status  types.CallStatus `json:"status"`
	Persona *types.Persona   `json:"persona"`
	Muted   bool             `json:"muted"`
}

type errBody struct {
	Error string `json:"error"`
}

func TestCallLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var c callBody
	if code := f.do(t, "GET", "/v1/call", "", &c); code != http.StatusOK || c.Status != types.StatusIdle {
		t.Fatalf("GET /v1/call = %d %+v", code, c)
	}
	if code := f.do(t, "POST", "/v1/call/ring", "", &c); code != http.StatusOK || c.Status != types.StatusRinging {
		t.Fatalf("ring = %d %+v", code, c)
	}
	if c.Persona == nil || c.Persona.DisplayName != "Strict Boss" {
		t.Errorf("ringing persona = %+v", c.Persona)
	}

	var ans struct{ Answered bool }
	if code := f.do(t, "POST", "/v1/call/answer", "{}", &ans); code != http.StatusOK || !ans.Answered {
		t.Fatalf("answer = %d %+v", code, ans)
	}
	if code := f.do(t, "POST", "/v1/call/mute", "", &c); code != http.StatusOK || !c.Muted {
		t.Errorf("mute = %d muted=%v", code, c.Muted)
	}

	var changed struct{ Changed bool }
	if code := f.do(t, "POST", "/v1/call/end", "", &changed); code != http.StatusOK || !changed.Changed {
		t.Errorf("end = %d %+v", code, changed)
	}
	f.do(t, "GET", "/v1/call", "", &c)
	if c.Status != types.StatusIdle {
		t.Errorf("status after end = %q, want idle", c.Status)
	}
	if f.do(t, "POST", "/v1/call/decline", "", &changed); changed.Changed {
		t.Error("decline with nothing ringing reported a change")
	}
}

func TestRing_UnknownPersonaIs404(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var e errBody
	code := f.do(t, "POST", "/v1/call/ring", `{"personaId":"nope"}`, &e)
	if code != http.StatusNotFound || e.Error == "" {
		t.Errorf("ring unknown = %d %+v, want 404 with message", code, e)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	tests := []struct {
		name, method, path, body string
	}{
		{"malformed", "POST", "/v1/call/ring", "{"},
		{"unknown field", "POST", "/v1/call/ring", `{"persona":"x"}`},
		{"missing required body", "PUT", "/v1/settings/mode", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := f.do(t, tt.method, tt.path, tt.body, nil); code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", code)
			}
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	body := `{"displayName":"` + strings.Repeat("a", 70<<10) + `"}`
	if code := f.do(t, "POST", "/v1/personas", body, nil); code != http.StatusRequestEntityTooLarge {
		t.Errorf("code = %d, want 413", code)
	}
}

func TestPersonas(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var created types.Persona
	code := f.do(t, "POST", "/v1/personas", `{"displayName":"  Aunt May ","relationshipType":"other","defaultTheme":"dinner"}`, &created)
	if code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	if created.ID == "" || created.DisplayName != "Aunt May" {
		t.Errorf("created = %+v", created)
	}

	var list struct {
		Personas   []types.Persona
		SelectedID string
	}
	f.do(t, "GET", "/v1/personas", "", &list)
	if len(list.Personas) != 5 || list.SelectedID != created.ID || list.Personas[0].ID != created.ID {
		t.Errorf("after create: %d personas, selected %q", len(list.Personas), list.SelectedID)
	}

	if code := f.do(t, "PUT", "/v1/personas/"+created.ID+"/voice", `{"voiceId":"en-US-Wavenet-F"}`, nil); code != http.StatusOK {
		t.Errorf("set voice = %d", code)
	}
	if p, _ := f.app.Settings().State().Persona(created.ID); p.VoiceID != "en-US-Wavenet-F" {
		t.Errorf("voice = %q", p.VoiceID)
	}

	first := settings.DefaultPersonas[0].ID
	if code := f.do(t, "PUT", "/v1/personas/selected", `{"id":"`+first+`"}`, &list); code != http.StatusOK || list.SelectedID != first {
		t.Errorf("select = %d selected %q", code, list.SelectedID)
	}
	if code := f.do(t, "PUT", "/v1/personas/selected", `{"id":"missing"}`, nil); code != http.StatusNotFound {
		t.Errorf("select missing = %d, want 404", code)
	}
	if code := f.do(t, "POST", "/v1/personas", `{"displayName":""}`, nil); code != http.StatusBadRequest {
		t.Errorf("create invalid = %d, want 400", code)
	}
}

func TestDeletePersona_LastIsConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	personas := f.app.Settings().Personas()
	for _, p := range personas[1:] {
		if code := f.do(t, "DELETE", "/v1/personas/"+p.ID, "", nil); code != http.StatusOK {
			t.Fatalf("delete %s = %d", p.ID, code)
		}
	}
	if code := f.do(t, "DELETE", "/v1/personas/"+personas[0].ID, "", nil); code != http.StatusConflict {
		t.Errorf("delete last = %d, want 409", code)
	}
	if code := f.do(t, "DELETE", "/v1/personas/unknown", "", nil); code != http.StatusNotFound {
		t.Errorf("delete unknown = %d, want 404", code)
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var st settings.State
	if code := f.do(t, "PUT", "/v1/settings/mode", `{"mode":"silent_message"}`, &st); code != http.StatusOK || st.Mode != types.ModeSilentMessage {
		t.Errorf("set mode = %d %q", code, st.Mode)
	}
	if code := f.do(t, "PUT", "/v1/settings/mode", `{"mode":"carrier_pigeon"}`, nil); code != http.StatusBadRequest {
		t.Errorf("invalid mode = %d, want 400", code)
	}
	if code := f.do(t, "PUT", "/v1/settings/voice", `{"voiceId":"en-US-Wavenet-D"}`, &st); code != http.StatusOK || st.VoiceID != "en-US-Wavenet-D" {
		t.Errorf("set voice = %d %q", code, st.VoiceID)
	}

	code := f.do(t, "PUT", "/v1/settings/voiceguard", `{"windowMinutes":10,"dbThreshold":-55}`, &st)
	if code != http.StatusOK || st.VoiceGuardWindowMinutes != 10 || st.VoiceGuardDBThreshold != -55 {
		t.Errorf("voiceguard settings = %d %+v", code, st)
	}
	if st.VoiceGuardSilenceMs != settings.DefaultVoiceGuardSilenceMs {
		t.Errorf("silence changed to %d without being sent", st.VoiceGuardSilenceMs)
	}
	if code := f.do(t, "PUT", "/v1/settings/voiceguard", `{"silenceMs":0}`, nil); code != http.StatusBadRequest {
		t.Errorf("zero silence = %d, want 400", code)
	}

	var voices []struct{ ID string }
	if f.do(t, "GET", "/v1/voices", "", &voices); len(voices) == 0 {
		t.Error("no voices listed")
	}
}

func TestEscape_SilentMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.app.Settings().SetMode(context.Background(), types.ModeSilentMessage); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	var res struct {
		Mode      types.CallMode
		Scheduled bool
	}
	if code := f.do(t, "POST", "/v1/escape", "", &res); code != http.StatusOK {
		t.Fatalf("escape = %d", code)
	}
	if res.Mode != types.ModeSilentMessage || !res.Scheduled {
		t.Errorf("escape = %+v", res)
	}
	var note struct{ Message string }
	f.do(t, "GET", "/v1/status", "", &note)
	if note.Message != "Message scheduled." {
		t.Errorf("status = %q", note.Message)
	}
}

func TestVoiceGuard(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.rec.SetLevel(-10)

	var vg struct {
		Active        bool
		Variant       string
		WindowTotalMs int64
	}
	if code := f.do(t, "POST", "/v1/voiceguard/start", `{"variant":"silence"}`, &vg); code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	want := int64(settings.DefaultVoiceGuardWindowMinutes * 60 * 1000)
	if !vg.Active || vg.Variant != "silence" || vg.WindowTotalMs != want {
		t.Errorf("started = %+v", vg)
	}
	if code := f.do(t, "POST", "/v1/mic/detect", "", nil); code != http.StatusConflict {
		t.Errorf("mic check during session = %d, want 409", code)
	}

	var changed struct{ Changed bool }
	if f.do(t, "POST", "/v1/voiceguard/stop", "", &changed); !changed.Changed {
		t.Error("stop reported no session")
	}
	f.do(t, "GET", "/v1/voiceguard", "", &vg)
	if vg.Active {
		t.Error("still active after stop")
	}
	if code := f.do(t, "POST", "/v1/voiceguard/start", `{"variant":"loud"}`, nil); code != http.StatusBadRequest {
		t.Errorf("bad variant = %d, want 400", code)
	}
}

func TestVoiceGuard_BusyDuringCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.do(t, "POST", "/v1/call/ring", "", nil)
	if code := f.do(t, "POST", "/v1/voiceguard/start", "", nil); code != http.StatusConflict {
		t.Errorf("start during call = %d, want 409", code)
	}
}

func TestVoiceGuard_PermissionDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.rec.Permission = false
	if code := f.do(t, "POST", "/v1/voiceguard/start", "", nil); code != http.StatusForbidden {
		t.Errorf("start without permission = %d, want 403", code)
	}
}

func TestMicLevel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var m struct{ LevelDB float64 }
	if code := f.do(t, "PUT", "/v1/mic/level", `{"levelDb":-42}`, &m); code != http.StatusOK || m.LevelDB != -42 {
		t.Errorf("set level = %d %+v", code, m)
	}
	if code := f.do(t, "PUT", "/v1/mic/level", `{"levelDb":3}`, nil); code != http.StatusBadRequest {
		t.Errorf("positive level = %d, want 400", code)
	}
	if code := f.do(t, "PUT", "/v1/mic/level", `{}`, nil); code != http.StatusBadRequest {
		t.Errorf("missing level = %d, want 400", code)
	}
}

func TestRecoversFromPanic(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.srv.Mux().HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	if code := f.do(t, "GET", "/boom", "", nil); code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", code)
	}
}

func TestEvents_StreamsCallChanges(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ts := httptest.NewServer(f.srv)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	type frame struct {
		Type string
		Call callBody
	}
	read := func() frame {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var fr frame
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&fr); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return fr
	}

	if fr := read(); fr.Type != "snapshot" || fr.Call.Status != types.StatusIdle {
		t.Fatalf("first frame = %+v", fr)
	}
	if err := f.app.Ring(ctx, ""); err != nil {
		t.Fatalf("Ring: %v", err)
	}
	for {
		fr := read()
		if fr.Type != "call" {
			t.Fatalf("frame type = %q", fr.Type)
		}
		if fr.Call.Status == types.StatusRinging {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
