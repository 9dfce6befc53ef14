package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach-dialer/internal/outreach"
	"outreach-dialer/pkg/logger"
)

var ErrInvalidArgument = errors.New("queue: invalid argument")

// Manager claims, dequeues and pages campaign queue entries.
// Atomicity comes from the store's conditional writes, not from locks here.
type Manager struct {
	store outreach.QueueStore
	clock func() time.Time
}

func NewManager(store outreach.QueueStore) *Manager {
	return &Manager{store: store, clock: time.Now}
}

// ClaimNext claims the next eligible entry for agentID. A lost race or an empty
// queue both come back as ok=false with a nil error.
func (m *Manager) ClaimNext(ctx context.Context, campaignID int64, agentID string, groupByHousehold bool) (outreach.QueueEntry, bool, error) {
	agentID = strings.TrimSpace(agentID)
	if campaignID <= 0 || agentID == "" || agentID == outreach.QueueStatusQueued || agentID == outreach.QueueStatusDequeued {
		return outreach.QueueEntry{}, false, ErrInvalidArgument
	}

	e, ok, err := m.store.ClaimQueueEntry(ctx, outreach.ClaimRequest{
		CampaignID:       campaignID,
		AgentID:          agentID,
		GroupByHousehold: groupByHousehold,
	})
	if err != nil {
		return outreach.QueueEntry{}, false, fmt.Errorf("claim next: %w", err)
	}
	if ok {
		logger.From(ctx).Debug("queue entry claimed",
			"campaign_id", campaignID, "agent_id", agentID, "contact_id", e.ContactID, "attempts", e.Attempts)
	}
	return e, ok, nil
}

// DequeueRequest removes a contact from the campaign queue.
type DequeueRequest struct {
	CampaignID int64
	ContactID  int64
	// GroupOnHousehold also dequeues everyone sharing the contact's household.
	GroupOnHousehold bool
	By               string
	Reason           string
}

// Dequeue is idempotent: entries already dequeued keep their original audit fields
// and count as zero changed rows.
func (m *Manager) Dequeue(ctx context.Context, req DequeueRequest) (int64, error) {
	if req.CampaignID <= 0 || req.ContactID <= 0 {
		return 0, ErrInvalidArgument
	}
	n, err := m.store.DequeueEntries(ctx, outreach.DequeueRequest{
		CampaignID: req.CampaignID,
		ContactID:  req.ContactID,
		Household:  req.GroupOnHousehold,
		By:         req.By,
		Reason:     req.Reason,
		At:         m.clock().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("dequeue: %w", err)
	}
	logger.From(ctx).Info("contact dequeued",
		"campaign_id", req.CampaignID, "contact_id", req.ContactID,
		"household", req.GroupOnHousehold, "by", req.By, "reason", req.Reason, "changed", n)
	return n, nil
}

// FetchMore returns up to limit queued entries not already in loaded.
// limit 0 returns an empty set without touching the store.
func (m *Manager) FetchMore(ctx context.Context, campaignID int64, loaded []outreach.QueueEntry, limit int) ([]outreach.QueueEntry, error) {
	if limit < 0 {
		return nil, ErrInvalidArgument
	}
	if limit == 0 {
		return []outreach.QueueEntry{}, nil
	}
	exclude := make([]int64, 0, len(loaded))
	for _, e := range loaded {
		exclude = append(exclude, e.ContactID)
	}
	out, err := m.store.ListQueued(ctx, campaignID, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch more: %w", err)
	}
	if out == nil {
		out = []outreach.QueueEntry{}
	}
	return out, nil
}

// RequeueAgent puts every entry claimed by agentID back to queued.
func (m *Manager) RequeueAgent(ctx context.Context, campaignID int64, agentID string) (int64, error) {
	if campaignID <= 0 || strings.TrimSpace(agentID) == "" {
		return 0, ErrInvalidArgument
	}
	n, err := m.store.RequeueClaimed(ctx, campaignID, agentID)
	if err != nil {
		return 0, fmt.Errorf("requeue agent: %w", err)
	}
	return n, nil
}

// ReleaseClaim puts back a single entry the agent claimed but never dialed.
// Other entries the agent holds stay claimed.
func (m *Manager) ReleaseClaim(ctx context.Context, entry outreach.QueueEntry, agentID string) (bool, error) {
	if entry.ID <= 0 || strings.TrimSpace(agentID) == "" {
		return false, ErrInvalidArgument
	}
	ok, err := m.store.ReleaseClaim(ctx, entry.ID, agentID)
	if err != nil {
		return false, fmt.Errorf("release claim: %w", err)
	}
	return ok, nil
}

// Admit adds contacts to the tail of the campaign queue.
func (m *Manager) Admit(ctx context.Context, campaignID int64, contactIDs []int64) (int64, error) {
	if campaignID <= 0 || len(contactIDs) == 0 {
		return 0, ErrInvalidArgument
	}
	n, err := m.store.EnqueueContacts(ctx, campaignID, contactIDs)
	if err != nil {
		return 0, fmt.Errorf("admit: %w", err)
	}
	return n, nil
}
