package telephony

import (
	"strings"
	"testing"
)

func TestRender_VoicemailDrop(t *testing.T) {
	out, err := VoicemailDrop("https://cdn.example.com/vm.mp3").Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	play := strings.Index(out, "<Play>https://cdn.example.com/vm.mp3</Play>")
	hangup := strings.Index(out, "<Hangup></Hangup>")
	if play < 0 || hangup < 0 || hangup < play {
		t.Fatalf("expected play then hangup: %s", out)
	}
}

func TestRender_HangupOnlyWithoutRecording(t *testing.T) {
	out, err := VoicemailDrop("").Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<Play") || !strings.Contains(out, "<Hangup") {
		t.Fatalf("expected bare hangup: %s", out)
	}
}

func TestRender_Conference(t *testing.T) {
	out, err := Instructions{Conference: &ConferenceBridge{
		Name:                   "agent-1",
		StartConferenceOnEnter: true,
		StatusCallback:         "https://dialer.example.com/webhooks/twilio/conference",
	}}.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		`startConferenceOnEnter="true"`,
		`endConferenceOnExit="false"`,
		`statusCallbackEvent="join leave"`,
		`>agent-1</Conference>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %s", want, out)
		}
	}
}

func TestRender_RejectsAmbiguousDial(t *testing.T) {
	if _, err := (Instructions{Client: "u1", Number: "+12015550123"}).Render(); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := (Instructions{}).Render(); err == nil {
		t.Fatalf("expected error for empty instructions")
	}
	if _, err := (Instructions{Conference: &ConferenceBridge{}}).Render(); err == nil {
		t.Fatalf("expected error for unnamed conference")
	}
}
