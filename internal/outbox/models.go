package outbox

import (
	"encoding/json"
	"time"
)

// Event is an append-only domain event. A separate delivery worker reads
// outbox_event and handles customer webhooks with its own retries.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required for tenancy isolation.
type Event struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Type        EventType `json:"type" db:"type"`

	CampaignID int64  `json:"campaign_id,omitempty" db:"campaign_id"`
	AttemptID  int64  `json:"attempt_id,omitempty" db:"attempt_id"`
	CallSid    string `json:"call_sid,omitempty" db:"call_sid"`

	Payload json.RawMessage `json:"payload" db:"payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventAttemptDispositioned EventType = "attempt.dispositioned"
)

// DispositionPayload is the body of an attempt.dispositioned event.
type DispositionPayload struct {
	AttemptID   int64      `json:"attempt_id"`
	ContactID   int64      `json:"contact_id"`
	CampaignID  int64      `json:"campaign_id"`
	UserID      string     `json:"user_id"`
	Disposition string     `json:"disposition"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}
