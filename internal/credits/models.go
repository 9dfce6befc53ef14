package credits

import (
	"errors"
	"time"
)

// Balance is a workspace's remaining dialing credit.
// The dialer only reads it; metering and top-ups live elsewhere.
type Balance struct {
	WorkspaceID string    `json:"workspace_id" db:"id"`
	Credits     int64     `json:"credits" db:"credits"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Exhausted reports whether no further dial may be admitted.
func (b Balance) Exhausted() bool { return b.Credits <= 0 }

var (
	ErrNotFound        = errors.New("credits: workspace not found")
	ErrInvalidArgument = errors.New("credits: invalid argument")
)
