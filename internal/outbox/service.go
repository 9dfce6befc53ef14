package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"outreach-dialer/internal/outreach"

	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("outbox: invalid event")

// Service appends domain events. Callers treat failures as best-effort:
// the state machine's correctness never depends on an event being written.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("outbox: repository not configured")
	}
	if e.WorkspaceID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// AttemptDispositioned records that an attempt reached a terminal disposition.
func (s *Service) AttemptDispositioned(ctx context.Context, a outreach.Attempt, callSid string) error {
	payload, err := json.Marshal(DispositionPayload{
		AttemptID:   a.ID,
		ContactID:   a.ContactID,
		CampaignID:  a.CampaignID,
		UserID:      a.UserID,
		Disposition: a.Disposition,
		AnsweredAt:  a.AnsweredAt,
		EndedAt:     a.EndedAt,
	})
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		WorkspaceID: a.WorkspaceID,
		Type:        EventAttemptDispositioned,
		CampaignID:  a.CampaignID,
		AttemptID:   a.ID,
		CallSid:     callSid,
		Payload:     payload,
	})
}
