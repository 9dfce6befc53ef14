package outbox

import (
	"context"
	"database/sql"
	"sync"
)

// Repository is the persistence contract for outbox events.
// It is append-only; there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO outbox_event (id, workspace_id, type, campaign_id, attempt_id, call_sid, payload, created_at)
VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, 0), NULLIF($6, ''), $7, $8)
`
	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.WorkspaceID, string(e.Type), e.CampaignID, e.AttemptID, e.CallSid, payload, e.CreatedAt)
	return err
}

// MemoryRepo is a simple in-memory append-only repository useful for tests.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
