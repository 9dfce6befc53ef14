package outreach

import "testing"

func TestCanTransition_ForwardOnly(t *testing.T) {
	cases := []struct {
		from, to AttemptState
		want     bool
	}{
		{StatePending, StateDialing, true},
		{StateDialing, StateConnected, true},
		{StateConnected, StateCompleted, true},
		{StateDialing, StateNoAnswer, true},
		{StatePending, StateFailed, true},
		{StateConnected, StateVoicemail, true},
		{StateDialing, StateDialing, false},
		{StateConnected, StateDialing, false},
		{StateCompleted, StateConnected, false},
		{StateNoAnswer, StateDialing, false},
		{StateVoicemail, StateCompleted, false},
		{StateCompleted, StateCompleted, false},
		{StatePending, AttemptState("bogus"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDisposition_NullUntilConnected(t *testing.T) {
	if StatePending.Disposition() != "" || StateDialing.Disposition() != "" {
		t.Fatalf("pending and dialing must have no disposition")
	}
	if StateConnected.Disposition() != "in-progress" {
		t.Fatalf("connected disposition = %q", StateConnected.Disposition())
	}
	if StateNoAnswer.Disposition() != "no-answer" {
		t.Fatalf("no-answer disposition = %q", StateNoAnswer.Disposition())
	}
}

func TestParseAttemptState(t *testing.T) {
	for _, st := range AllStates {
		got, err := ParseAttemptState(string(st))
		if err != nil || got != st {
			t.Fatalf("parse %s: %v %v", st, got, err)
		}
	}
	if _, err := ParseAttemptState("dialling"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHouseholdKeyFor(t *testing.T) {
	a := HouseholdKeyFor("12 Main St.")
	b := HouseholdKeyFor("  12  main st ")
	if a != b || a != "12 main st" {
		t.Fatalf("expected normalised keys to match, got %q %q", a, b)
	}
	if HouseholdKeyFor("") != "" {
		t.Fatalf("empty address must have empty key")
	}
	if (Contact{ID: 1, Address: "12 Main St"}).Household() != "12 main st" {
		t.Fatalf("household should fall back to address")
	}
}
