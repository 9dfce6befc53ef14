package calls

import "time"

// Call is one provider call leg, keyed by the provider's call sid.
//
// Exactly one row exists per Sid; writers upsert by Sid. Campaign, contact, workspace
// and attempt ids are denormalized at dial time so webhook handlers never need a join
// to find what a leg belongs to.
type Call struct {
	Sid           string `json:"sid" db:"sid"`
	ParentCallSid string `json:"parent_call_sid,omitempty" db:"parent_call_sid"`

	// AttemptID is zero for legs the dialer did not create (agent devices, client legs).
	AttemptID   int64  `json:"outreach_attempt_id,omitempty" db:"outreach_attempt_id"`
	CampaignID  int64  `json:"campaign_id,omitempty" db:"campaign_id"`
	ContactID   int64  `json:"contact_id,omitempty" db:"contact_id"`
	WorkspaceID string `json:"workspace_id,omitempty" db:"workspace_id"`

	ConferenceID string `json:"conference_id,omitempty" db:"conference_id"`
	// ConferenceTag is the conference friendly name; predictive mode uses the agent id.
	ConferenceTag string `json:"conference_tag,omitempty" db:"conference_tag"`

	Direction string `json:"direction" db:"direction"`
	To        string `json:"to" db:"to"`
	From      string `json:"from" db:"from"`

	Status     CallStatus `json:"status" db:"status"`
	AnsweredBy string     `json:"answered_by,omitempty" db:"answered_by"`

	StartTime *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasAttempt reports whether the leg was placed by the dial coordinator for a contact.
func (c Call) HasAttempt() bool { return c.AttemptID > 0 }

// CallStatus uses the provider's wire spelling.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// Terminal reports whether no further status change is expected for the leg.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// Active reports whether the leg can still be hung up.
func (s CallStatus) Active() bool {
	switch s {
	case CallStatusQueued, CallStatusInitiated, CallStatusRinging, CallStatusInProgress:
		return true
	default:
		return false
	}
}

// Merge returns the status a stored leg should carry after receiving next.
// A terminal status is never replaced by a late non-terminal callback.
func (s CallStatus) Merge(next CallStatus) CallStatus {
	if next == "" {
		return s
	}
	if s.Terminal() && !next.Terminal() {
		return s
	}
	return next
}
