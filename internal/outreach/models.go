package outreach

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// Contact is a dialable person scoped to a workspace.
// A blank phone means the contact can never be the next contact dialed.
type Contact struct {
	ID          int64  `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	Firstname   string `json:"firstname" db:"firstname"`
	Surname     string `json:"surname" db:"surname"`
	Phone       string `json:"phone" db:"phone"`
	Address     string `json:"address" db:"address"`

	// HouseholdKey is derived from Address by writers (see HouseholdKeyFor).
	HouseholdKey string `json:"household_key" db:"household_key"`
}

func (c Contact) Dialable() bool { return strings.TrimSpace(c.Phone) != "" }

// Household returns the grouping key for the contact, or "" when it has no address.
func (c Contact) Household() string {
	if c.HouseholdKey != "" {
		return c.HouseholdKey
	}
	return HouseholdKeyFor(c.Address)
}

// HouseholdKeyFor normalises an address into a household key:
// lower case, punctuation dropped, whitespace collapsed.
func HouseholdKeyFor(address string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(address) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == ',' || r == '.' || r == '#' || r == '-':
			space = true
		}
	}
	return b.String()
}

// Queue entry statuses. Any other value is the id of the agent holding the claim.
const (
	QueueStatusQueued   = "queued"
	QueueStatusDequeued = "dequeued"
)

// QueueEntry joins a contact to a campaign. Entries are never deleted;
// dequeue records who removed the entry and why.
type QueueEntry struct {
	ID         int64  `json:"id" db:"id"`
	CampaignID int64  `json:"campaign_id" db:"campaign_id"`
	ContactID  int64  `json:"contact_id" db:"contact_id"`
	Status     string `json:"status" db:"status"`
	Attempts   int    `json:"attempts" db:"attempts"`
	QueueOrder int    `json:"queue_order" db:"queue_order"`

	DequeuedBy     string     `json:"dequeued_by,omitempty" db:"dequeued_by"`
	DequeuedAt     *time.Time `json:"dequeued_at,omitempty" db:"dequeued_at"`
	DequeuedReason string     `json:"dequeued_reason,omitempty" db:"dequeued_reason"`

	Contact Contact `json:"contact"`
}

func (q QueueEntry) Queued() bool   { return q.Status == QueueStatusQueued }
func (q QueueEntry) Dequeued() bool { return q.Status == QueueStatusDequeued }

// ClaimedBy reports whether agentID currently holds the entry.
func (q QueueEntry) ClaimedBy(agentID string) bool {
	return agentID != "" && q.Status == agentID
}

type DialType string

const (
	DialTypeCall       DialType = "call"
	DialTypePredictive DialType = "predictive"
)

// Campaign is read-only here apart from status.
type Campaign struct {
	ID                  int64    `json:"id" db:"id"`
	WorkspaceID         string   `json:"workspace_id" db:"workspace_id"`
	Title               string   `json:"title" db:"title"`
	DialType            DialType `json:"dial_type" db:"dial_type"`
	CallerID            string   `json:"caller_id" db:"caller_id"`
	GroupHouseholdQueue bool     `json:"group_household_queue" db:"group_household_queue"`
	VoicemailURL        string   `json:"voicemail_url" db:"voicemail_url"`
	DialRatio           int      `json:"dial_ratio" db:"dial_ratio"`
	Status              string   `json:"status" db:"status"`
}

func (c Campaign) Predictive() bool { return c.DialType == DialTypePredictive }

// Attempt is one dial cycle for a (contact, campaign) pair.
type Attempt struct {
	ID          int64  `json:"id" db:"id"`
	ContactID   int64  `json:"contact_id" db:"contact_id"`
	CampaignID  int64  `json:"campaign_id" db:"campaign_id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	UserID      string `json:"user_id" db:"user_id"`

	State AttemptState `json:"state" db:"state"`
	// Disposition is empty (NULL) until the attempt connects or resolves.
	Disposition string `json:"disposition,omitempty" db:"disposition"`

	CurrentStep string `json:"current_step,omitempty" db:"current_step"`
	// Result belongs to the agent-facing save path; the dialer never writes it.
	Result json.RawMessage `json:"result,omitempty" db:"result"`

	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// AttemptUpdate is applied only when State is a legal forward transition.
// Zero-valued optional fields leave the stored value unchanged.
type AttemptUpdate struct {
	State      AttemptState
	AnsweredAt *time.Time
	EndedAt    *time.Time
}

// DequeueRequest removes a contact (and optionally its household) from a campaign queue.
type DequeueRequest struct {
	CampaignID int64
	ContactID  int64
	Household  bool
	By         string
	Reason     string
	At         time.Time
}

// ClaimRequest claims the next queued, dialable entry for an agent.
type ClaimRequest struct {
	CampaignID int64
	AgentID    string
	// GroupByHousehold keeps members of one household adjacent in claim order.
	GroupByHousehold bool
}

// StateCounts is the number of attempts per state for a campaign.
type StateCounts map[AttemptState]int64
