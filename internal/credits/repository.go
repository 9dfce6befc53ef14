package credits

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

type Repository interface {
	GetBalance(ctx context.Context, workspaceID string) (Balance, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetBalance(ctx context.Context, workspaceID string) (Balance, error) {
	const q = `
SELECT id, credits, updated_at
FROM workspace
WHERE id = $1
`
	var b Balance
	if err := r.db.QueryRowContext(ctx, q, workspaceID).Scan(&b.WorkspaceID, &b.Credits, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

// MemoryRepo is an in-memory Repository useful for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	balances map[string]Balance
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{balances: map[string]Balance{}} }

func (r *MemoryRepo) Set(workspaceID string, credits int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[workspaceID] = Balance{WorkspaceID: workspaceID, Credits: credits, UpdatedAt: time.Now().UTC()}
}

func (r *MemoryRepo) GetBalance(ctx context.Context, workspaceID string) (Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[workspaceID]
	if !ok {
		return Balance{}, ErrNotFound
	}
	return b, nil
}
