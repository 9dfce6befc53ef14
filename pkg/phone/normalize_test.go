package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	if got := NormalizeE164("(201) 555-0123", "US"); got != "+12015550123" {
		t.Fatalf("expected +12015550123, got %q", got)
	}
	if got := NormalizeE164("  ", "US"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := NormalizeE164("not a number", "US"); got != "not a number" {
		t.Fatalf("expected input passthrough, got %q", got)
	}
}

func TestSame(t *testing.T) {
	if !Same("+1 201 555 0123", "2015550123", "US") {
		t.Fatalf("expected same number")
	}
	if !Same("client:Agent-1", "CLIENT:agent-1", "US") {
		t.Fatalf("expected client addresses to match")
	}
	if Same("", "", "US") {
		t.Fatalf("empty numbers never match")
	}
}
