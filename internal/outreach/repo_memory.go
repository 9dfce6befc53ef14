package outreach

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"outreach-dialer/internal/calls"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
// A single mutex makes every method atomic, which is what the store's
// conditional updates guarantee in Postgres.
type MemoryRepo struct {
	mu sync.Mutex

	campaigns map[int64]Campaign
	contacts  map[int64]Contact
	queue     []QueueEntry
	attempts  map[int64]Attempt
	calls     map[string]calls.Call
	devices   map[string][]string

	nextQueueID   int64
	nextAttemptID int64

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		campaigns: map[int64]Campaign{},
		contacts:  map[int64]Contact{},
		attempts:  map[int64]Attempt{},
		calls:     map[string]calls.Call{},
		devices:   map[string][]string{},
		clock:     time.Now,
	}
}

// SetClock overrides the time source used for created_at and updated_at.
func (r *MemoryRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = now
}

func (r *MemoryRepo) PutCampaign(c Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
}

func (r *MemoryRepo) PutContact(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.HouseholdKey == "" {
		c.HouseholdKey = HouseholdKeyFor(c.Address)
	}
	r.contacts[c.ID] = c
}

// Enqueue admits a contact into a campaign queue at the given order.
func (r *MemoryRepo) Enqueue(campaignID, contactID int64, order int) QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextQueueID++
	e := QueueEntry{
		ID:         r.nextQueueID,
		CampaignID: campaignID,
		ContactID:  contactID,
		Status:     QueueStatusQueued,
		QueueOrder: order,
	}
	r.queue = append(r.queue, e)
	e.Contact = r.contacts[contactID]
	return e
}

func (r *MemoryRepo) PutDevice(userID, phone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[userID] = append(r.devices[userID], phone)
}

// Entries returns a snapshot of every queue entry of the campaign in insertion order.
func (r *MemoryRepo) Entries(campaignID int64) []QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []QueueEntry
	for _, e := range r.queue {
		if e.CampaignID == campaignID {
			e.Contact = r.contacts[e.ContactID]
			out = append(out, e)
		}
	}
	return out
}

// Attempts returns a snapshot of every attempt ordered by id.
func (r *MemoryRepo) Attempts() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, 0, len(r.attempts))
	for _, a := range r.attempts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRepo) Calls() []calls.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sid < out[j].Sid })
	return out
}

func (r *MemoryRepo) ClaimQueueEntry(ctx context.Context, req ClaimRequest) (QueueEntry, bool, error) {
	if req.CampaignID == 0 || strings.TrimSpace(req.AgentID) == "" {
		return QueueEntry{}, false, &StoreError{Kind: KindConstraint, Op: "claim queue entry", Err: ErrInvalidArgument}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	householdOrder := map[string]int{}
	if req.GroupByHousehold {
		for _, e := range r.queue {
			if e.CampaignID != req.CampaignID {
				continue
			}
			key := r.contacts[e.ContactID].Household()
			if key == "" {
				continue
			}
			if o, ok := householdOrder[key]; !ok || e.QueueOrder < o {
				householdOrder[key] = e.QueueOrder
			}
		}
	}
	unitOrder := func(e QueueEntry) int {
		if key := r.contacts[e.ContactID].Household(); key != "" && req.GroupByHousehold {
			return householdOrder[key]
		}
		return e.QueueOrder
	}

	best := -1
	for i, e := range r.queue {
		if e.CampaignID != req.CampaignID || !e.Queued() || !r.contacts[e.ContactID].Dialable() {
			continue
		}
		if best < 0 || claimsBefore(e, r.queue[best], unitOrder) {
			best = i
		}
	}
	if best < 0 {
		return QueueEntry{}, false, nil
	}

	r.queue[best].Status = req.AgentID
	r.queue[best].Attempts++
	out := r.queue[best]
	out.Contact = r.contacts[out.ContactID]
	return out, true, nil
}

func claimsBefore(a, b QueueEntry, unitOrder func(QueueEntry) int) bool {
	if a.Attempts != b.Attempts {
		return a.Attempts < b.Attempts
	}
	if ua, ub := unitOrder(a), unitOrder(b); ua != ub {
		return ua < ub
	}
	if a.QueueOrder != b.QueueOrder {
		return a.QueueOrder < b.QueueOrder
	}
	return a.ID < b.ID
}

func (r *MemoryRepo) GetQueueEntry(ctx context.Context, campaignID, contactID int64) (QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.queue {
		if e.CampaignID == campaignID && e.ContactID == contactID {
			e.Contact = r.contacts[contactID]
			return e, nil
		}
	}
	return QueueEntry{}, notFound("get queue entry")
}

func (r *MemoryRepo) ListQueued(ctx context.Context, campaignID int64, exclude []int64, limit int) ([]QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []QueueEntry
	for _, e := range r.queue {
		if e.CampaignID != campaignID || !e.Queued() {
			continue
		}
		if _, ok := skip[e.ContactID]; ok {
			continue
		}
		e.Contact = r.contacts[e.ContactID]
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return claimsBefore(out[i], out[j], func(e QueueEntry) int { return e.QueueOrder })
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) DequeueEntries(ctx context.Context, req DequeueRequest) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	household := ""
	if req.Household {
		household = r.contacts[req.ContactID].Household()
	}
	at := req.At
	if at.IsZero() {
		at = r.clock().UTC()
	}

	var n int64
	for i, e := range r.queue {
		if e.CampaignID != req.CampaignID || e.Dequeued() {
			continue
		}
		match := e.ContactID == req.ContactID ||
			(household != "" && r.contacts[e.ContactID].Household() == household)
		if !match {
			continue
		}
		r.queue[i].Status = QueueStatusDequeued
		r.queue[i].DequeuedBy = req.By
		r.queue[i].DequeuedAt = &at
		r.queue[i].DequeuedReason = req.Reason
		n++
	}
	return n, nil
}

func (r *MemoryRepo) RequeueClaimed(ctx context.Context, campaignID int64, agentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i, e := range r.queue {
		if e.CampaignID == campaignID && e.ClaimedBy(agentID) {
			r.queue[i].Status = QueueStatusQueued
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) ReleaseClaim(ctx context.Context, entryID int64, agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.queue {
		if e.ID == entryID && e.ClaimedBy(agentID) {
			r.queue[i].Status = QueueStatusQueued
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepo) EnqueueContacts(ctx context.Context, campaignID int64, contactIDs []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxOrder := 0
	present := map[int64]bool{}
	for _, e := range r.queue {
		if e.CampaignID != campaignID {
			continue
		}
		present[e.ContactID] = true
		if e.QueueOrder > maxOrder {
			maxOrder = e.QueueOrder
		}
	}
	var added int64
	for _, id := range contactIDs {
		if present[id] {
			continue
		}
		if _, ok := r.contacts[id]; !ok {
			return added, &StoreError{Kind: KindConstraint, Op: "enqueue contacts", Err: ErrNotFound}
		}
		maxOrder++
		r.nextQueueID++
		r.queue = append(r.queue, QueueEntry{
			ID:         r.nextQueueID,
			CampaignID: campaignID,
			ContactID:  id,
			Status:     QueueStatusQueued,
			QueueOrder: maxOrder,
		})
		present[id] = true
		added++
	}
	return added, nil
}

func (r *MemoryRepo) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contacts[a.ContactID]; !ok {
		return Attempt{}, &StoreError{Kind: KindConstraint, Op: "create attempt", Err: ErrNotFound}
	}
	r.nextAttemptID++
	a.ID = r.nextAttemptID
	if a.State == "" {
		a.State = StatePending
	}
	a.Disposition = a.State.Disposition()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.clock().UTC()
	}
	r.attempts[a.ID] = a
	return a, nil
}

func (r *MemoryRepo) GetAttempt(ctx context.Context, id int64) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, notFound("get attempt")
	}
	return a, nil
}

func (r *MemoryRepo) UpdateAttempt(ctx context.Context, id int64, upd AttemptUpdate) (Attempt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, false, notFound("update attempt")
	}
	if !CanTransition(a.State, upd.State) {
		return a, false, nil
	}
	a.State = upd.State
	a.Disposition = upd.State.Disposition()
	if upd.AnsweredAt != nil && a.AnsweredAt == nil {
		t := *upd.AnsweredAt
		a.AnsweredAt = &t
	}
	if upd.EndedAt != nil {
		t := *upd.EndedAt
		a.EndedAt = &t
	}
	r.attempts[id] = a
	return a, true, nil
}

func (r *MemoryRepo) LatestAttempt(ctx context.Context, campaignID, contactID int64, since time.Time) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  Attempt
		found bool
	)
	for _, a := range r.attempts {
		if a.CampaignID != campaignID || a.ContactID != contactID || a.CreatedAt.Before(since) {
			continue
		}
		if !found || a.CreatedAt.After(best.CreatedAt) || (a.CreatedAt.Equal(best.CreatedAt) && a.ID > best.ID) {
			best, found = a, true
		}
	}
	if !found {
		return Attempt{}, notFound("latest attempt")
	}
	return best, nil
}

func (r *MemoryRepo) CountAttemptsByState(ctx context.Context, campaignID int64) (StateCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := StateCounts{}
	for _, a := range r.attempts {
		if a.CampaignID == campaignID {
			out[a.State]++
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpsertCall(ctx context.Context, c calls.Call) (calls.Call, error) {
	if strings.TrimSpace(c.Sid) == "" {
		return calls.Call{}, &StoreError{Kind: KindConstraint, Op: "upsert call", Err: ErrInvalidArgument}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.calls[c.Sid]
	if !ok {
		if c.Status == "" {
			c.Status = calls.CallStatusQueued
		}
		c.UpdatedAt = r.clock().UTC()
		r.calls[c.Sid] = c
		return c, nil
	}

	cur.Status = cur.Status.Merge(c.Status)
	mergeString(&cur.ParentCallSid, c.ParentCallSid)
	mergeString(&cur.WorkspaceID, c.WorkspaceID)
	mergeString(&cur.ConferenceID, c.ConferenceID)
	mergeString(&cur.ConferenceTag, c.ConferenceTag)
	mergeString(&cur.Direction, c.Direction)
	mergeString(&cur.To, c.To)
	mergeString(&cur.From, c.From)
	mergeString(&cur.AnsweredBy, c.AnsweredBy)
	if c.AttemptID != 0 {
		cur.AttemptID = c.AttemptID
	}
	if c.CampaignID != 0 {
		cur.CampaignID = c.CampaignID
	}
	if c.ContactID != 0 {
		cur.ContactID = c.ContactID
	}
	if cur.StartTime == nil && c.StartTime != nil {
		cur.StartTime = c.StartTime
	}
	if c.EndTime != nil {
		cur.EndTime = c.EndTime
	}
	cur.UpdatedAt = r.clock().UTC()
	r.calls[c.Sid] = cur
	return cur, nil
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (r *MemoryRepo) GetCall(ctx context.Context, sid string) (calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sid]
	if !ok {
		return calls.Call{}, notFound("get call")
	}
	return c, nil
}

func (r *MemoryRepo) SetCallConference(ctx context.Context, sid, conferenceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sid]
	if !ok {
		return notFound("set call conference")
	}
	c.ConferenceID = conferenceID
	c.UpdatedAt = r.clock().UTC()
	r.calls[sid] = c
	return nil
}

func (r *MemoryRepo) ListActiveCalls(ctx context.Context, campaignID int64, conferenceTag string) ([]calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []calls.Call
	for _, c := range r.calls {
		if c.CampaignID == campaignID && c.ConferenceTag == conferenceTag && !c.Status.Terminal() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sid < out[j].Sid })
	return out, nil
}

func (r *MemoryRepo) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return Campaign{}, notFound("get campaign")
	}
	return c, nil
}

func (r *MemoryRepo) ListVerifiedDevices(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.devices[userID]))
	copy(out, r.devices[userID])
	return out, nil
}

var _ Repository = (*MemoryRepo)(nil)
