package dialer

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument   = errors.New("dialer: invalid argument")
	ErrWorkspaceMismatch = errors.New("dialer: campaign belongs to another workspace")
)

// Origin tells the coordinator who asked for a cycle.
type Origin string

const (
	// OriginAgent is a UI click. It clears a previous leave-campaign stop flag.
	OriginAgent Origin = "agent"
	// OriginFeedForward is a cycle queued by the event processor after a slot freed up.
	OriginFeedForward Origin = "feed-forward"
)

// Request is one dial cycle for an agent in a campaign.
type Request struct {
	CampaignID  int64  `json:"campaign_id"`
	AgentID     string `json:"agent_id"`
	WorkspaceID string `json:"workspace_id"`
	Origin      Origin `json:"origin,omitempty"`
}

func (r Request) validate() error {
	if r.CampaignID <= 0 || r.AgentID == "" {
		return ErrInvalidArgument
	}
	return nil
}

type OutcomeKind string

const (
	OutcomeDialed              OutcomeKind = "dialed"
	OutcomeNoContactsAvailable OutcomeKind = "no_contacts_available"
	OutcomeCreditsExhausted    OutcomeKind = "credits_exhausted"
	// OutcomeAgentUnavailable: predictive agent left the campaign or has no live conference.
	OutcomeAgentUnavailable OutcomeKind = "agent_unavailable"
	// OutcomeInFlight: the agent's conference already has its allowed dials in flight.
	OutcomeInFlight OutcomeKind = "in_flight"
)

// Outcome is the typed result of RunCycle. Only Dialed carries ids.
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	AttemptID int64       `json:"attempt_id,omitempty"`
	CallSid   string      `json:"call_sid,omitempty"`
	ContactID int64       `json:"contact_id,omitempty"`
}

func (o Outcome) Dialed() bool { return o.Kind == OutcomeDialed }

// CycleError wraps a gateway or store failure after an attempt was created.
type CycleError struct {
	AttemptID int64
	CallSid   string
	Err       error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dial cycle attempt=%d call_sid=%q: %v", e.AttemptID, e.CallSid, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }
