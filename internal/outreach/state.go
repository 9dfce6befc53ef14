package outreach

import "fmt"

// AttemptState is written once per transition instead of being inferred from
// nullable columns by every reader.
type AttemptState string

const (
	StatePending   AttemptState = "pending"
	StateDialing   AttemptState = "dialing"
	StateConnected AttemptState = "connected"
	StateCompleted AttemptState = "completed"
	StateVoicemail AttemptState = "voicemail"
	StateFailed    AttemptState = "failed"
	StateBusy      AttemptState = "busy"
	StateNoAnswer  AttemptState = "no-answer"
	StateCanceled  AttemptState = "canceled"
)

// AllStates lists states in lifecycle order.
var AllStates = []AttemptState{
	StatePending, StateDialing, StateConnected,
	StateCompleted, StateVoicemail, StateFailed, StateBusy, StateNoAnswer, StateCanceled,
}

func ParseAttemptState(s string) (AttemptState, error) {
	for _, st := range AllStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("outreach: unknown attempt state %q", s)
}

func (s AttemptState) Terminal() bool { return s.rank() == rankTerminal }

// Disposition is the value stored in outreach_attempt.disposition.
// Empty means NULL.
func (s AttemptState) Disposition() string {
	switch s {
	case StatePending, StateDialing, "":
		return ""
	case StateConnected:
		return "in-progress"
	default:
		return string(s)
	}
}

const (
	rankUnknown   = -1
	rankPending   = 0
	rankDialing   = 1
	rankConnected = 2
	rankTerminal  = 3
)

func (s AttemptState) rank() int {
	switch s {
	case StatePending:
		return rankPending
	case StateDialing:
		return rankDialing
	case StateConnected:
		return rankConnected
	case StateCompleted, StateVoicemail, StateFailed, StateBusy, StateNoAnswer, StateCanceled:
		return rankTerminal
	default:
		return rankUnknown
	}
}

// CanTransition reports whether from -> to moves the attempt forward.
// Terminal states are sticky: nothing replaces them, including another terminal value.
func CanTransition(from, to AttemptState) bool {
	fr, tr := from.rank(), to.rank()
	if fr == rankUnknown || tr == rankUnknown {
		return false
	}
	return tr > fr
}
