package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func formRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseStatusCallback(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := formRequest("CallSid=CA123&CallStatus=no-answer&AnsweredBy=machine_start&Timestamp=Tue%2C+14+Nov+2023+22%3A13%3A20+%2B0000&To=%2B12015550123")

	f, err := ParseStatusCallback(r, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CallSid != "CA123" || f.CallStatus != "no-answer" || f.To != "+12015550123" {
		t.Fatalf("unexpected form %+v", f)
	}
	if !f.Timestamp.Equal(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", f.Timestamp)
	}
	if !IsMachine(f.AnsweredBy) {
		t.Fatalf("machine_start should be a machine")
	}
}

func TestParseStatusCallback_RequiresCallSid(t *testing.T) {
	if _, err := ParseStatusCallback(formRequest("CallStatus=busy"), time.Now()); err != ErrMissingCallSid {
		t.Fatalf("expected ErrMissingCallSid, got %v", err)
	}
}

func TestParseConferenceEvent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := formRequest("CallSid=CA9&ConferenceSid=CF1&FriendlyName=u1&StatusCallbackEvent=participant-leave&ReasonParticipantLeft=participant_hung_up&Timestamp=garbage")

	f, err := ParseConferenceEvent(r, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.StatusCallbackEvent != EventParticipantLeave || !EndsParticipation(f.ReasonParticipantLeft) {
		t.Fatalf("unexpected form %+v", f)
	}
	if !f.Timestamp.Equal(now.UTC()) {
		t.Fatalf("bad timestamp should fall back to now, got %v", f.Timestamp)
	}
}

func TestIsMachine(t *testing.T) {
	cases := map[string]bool{
		"machine_start":       true,
		"machine_end_beep":    true,
		"human":               false,
		"unknown":             false,
		"machine_other":       false,
		"fax":                 false,
		"MACHINE_END_SILENCE": true,
	}
	for in, want := range cases {
		if got := IsMachine(in); got != want {
			t.Fatalf("IsMachine(%q) = %v, want %v", in, got, want)
		}
	}
}
