package types

import (
	"encoding/json"
	"testing"
)

func TestCallStatus_JSONRoundTrip(t *testing.T) {
	for _, st := range []CallStatus{StatusIdle, StatusRinging, StatusAnswered, StatusEnded} {
		data, err := json.Marshal(struct {
			Status CallStatus `json:"status"`
		}{st})
		if err != nil {
			t.Fatalf("marshal %v: %v", st, err)
		}
		var got struct {
			Status CallStatus `json:"status"`
		}
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Status != st {
			t.Errorf("round trip of %v = %v", st, got.Status)
		}
	}
}

func TestCallStatus_UnmarshalRejectsUnknown(t *testing.T) {
	for _, in := range []string{"unknown", "", "Idle", "1"} {
		var s CallStatus
		if err := s.UnmarshalText([]byte(in)); err == nil {
			t.Errorf("UnmarshalText(%q) = nil error, want failure", in)
		}
	}
}
