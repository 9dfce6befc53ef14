package outreach

import (
	"context"
	"time"

	"outreach-dialer/internal/calls"
)

// QueueStore is the queue half of the repository.
type QueueStore interface {
	// ClaimQueueEntry claims one queued entry with a dialable contact in a single
	// conditional write. ok is false when nothing could be claimed.
	ClaimQueueEntry(ctx context.Context, req ClaimRequest) (entry QueueEntry, ok bool, err error)
	GetQueueEntry(ctx context.Context, campaignID, contactID int64) (QueueEntry, error)
	// ListQueued returns up to limit queued entries whose contact is not in exclude.
	ListQueued(ctx context.Context, campaignID int64, exclude []int64, limit int) ([]QueueEntry, error)
	// DequeueEntries marks matching entries dequeued and returns how many changed.
	// Entries already dequeued are left alone.
	DequeueEntries(ctx context.Context, req DequeueRequest) (int64, error)
	// RequeueClaimed returns every entry held by agentID in the campaign to queued.
	RequeueClaimed(ctx context.Context, campaignID int64, agentID string) (int64, error)
	// ReleaseClaim returns one entry to queued, only while agentID still holds it.
	ReleaseClaim(ctx context.Context, entryID int64, agentID string) (bool, error)
	// EnqueueContacts admits contacts after the current tail of the queue.
	// Contacts already in the campaign queue are skipped.
	EnqueueContacts(ctx context.Context, campaignID int64, contactIDs []int64) (int64, error)
}

// AttemptStore owns outreach attempts.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	GetAttempt(ctx context.Context, id int64) (Attempt, error)
	// UpdateAttempt applies upd when CanTransition(current, upd.State) holds.
	// applied is false (and err nil) when the stored state already moved past it.
	UpdateAttempt(ctx context.Context, id int64, upd AttemptUpdate) (a Attempt, applied bool, err error)
	// LatestAttempt returns the newest attempt created at or after since.
	LatestAttempt(ctx context.Context, campaignID, contactID int64, since time.Time) (Attempt, error)
	CountAttemptsByState(ctx context.Context, campaignID int64) (StateCounts, error)
}

// CallStore owns provider call legs.
type CallStore interface {
	// UpsertCall is idempotent by Sid. Non-empty fields overwrite, a terminal
	// status is never replaced by a non-terminal one.
	UpsertCall(ctx context.Context, c calls.Call) (calls.Call, error)
	GetCall(ctx context.Context, sid string) (calls.Call, error)
	SetCallConference(ctx context.Context, sid, conferenceID string) error
	// ListActiveCalls returns non-terminal legs tagged for the agent's conference.
	ListActiveCalls(ctx context.Context, campaignID int64, conferenceTag string) ([]calls.Call, error)
}

// Repository is everything the dialer core reads and writes.
type Repository interface {
	QueueStore
	AttemptStore
	CallStore

	GetCampaign(ctx context.Context, id int64) (Campaign, error)
	// ListVerifiedDevices returns the agent's verified audio device numbers.
	ListVerifiedDevices(ctx context.Context, userID string) ([]string, error)
}
