package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"outreach-dialer/internal/outreach"
)

type countingStore struct {
	outreach.QueueStore
	listCalls int
}

func (s *countingStore) ListQueued(ctx context.Context, campaignID int64, exclude []int64, limit int) ([]outreach.QueueEntry, error) {
	s.listCalls++
	return s.QueueStore.ListQueued(ctx, campaignID, exclude, limit)
}

func TestManager_ClaimNextSingleQueuedEntry(t *testing.T) {
	repo := outreach.NewMemoryRepo()
	repo.PutContact(outreach.Contact{ID: 1, Phone: "555-0100"})
	repo.Enqueue(1, 1, 1)
	m := NewManager(repo)

	const n = 20
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		empty int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.ClaimNext(context.Background(), 1, "u1", false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				t.Errorf("claim: %v", err)
			case ok:
				wins++
			default:
				empty++
			}
		}()
	}
	wg.Wait()
	if wins != 1 || empty != n-1 {
		t.Fatalf("expected 1 win and %d empty, got %d/%d", n-1, wins, empty)
	}
}

func TestManager_ClaimNextValidates(t *testing.T) {
	m := NewManager(outreach.NewMemoryRepo())
	if _, _, err := m.ClaimNext(context.Background(), 1, "queued", false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("reserved status must not be usable as agent id, got %v", err)
	}
	if _, _, err := m.ClaimNext(context.Background(), 0, "u1", false); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestManager_DequeueHouseholdCascade(t *testing.T) {
	repo := outreach.NewMemoryRepo()
	for i, addr := range []string{"12 Main St", "12 main st", "12 Main St.", "9 Elm Rd"} {
		id := int64(i + 1)
		repo.PutContact(outreach.Contact{ID: id, Phone: "555-010" + string(rune('0'+i)), Address: addr})
		repo.Enqueue(1, id, i+1)
	}
	m := NewManager(repo)

	n, err := m.Dequeue(context.Background(), DequeueRequest{CampaignID: 1, ContactID: 2, GroupOnHousehold: true, By: "u1", Reason: "completed"})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 dequeued, n=%d err=%v", n, err)
	}
	for _, e := range repo.Entries(1) {
		if e.ContactID == 4 {
			continue
		}
		if !e.Dequeued() || e.DequeuedBy != "u1" || e.DequeuedReason != "completed" {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	n, err = m.Dequeue(context.Background(), DequeueRequest{CampaignID: 1, ContactID: 2, GroupOnHousehold: true, By: "u1", Reason: "completed"})
	if err != nil || n != 0 {
		t.Fatalf("second dequeue should be a no-op, n=%d err=%v", n, err)
	}
}

func TestManager_FetchMore(t *testing.T) {
	repo := outreach.NewMemoryRepo()
	for i := int64(1); i <= 6; i++ {
		repo.PutContact(outreach.Contact{ID: i, Phone: "555"})
		repo.Enqueue(1, i, int(i))
	}
	store := &countingStore{QueueStore: repo}
	m := NewManager(store)
	ctx := context.Background()

	got, err := m.FetchMore(ctx, 1, nil, 0)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("limit 0 should return an empty set, got %v err=%v", got, err)
	}
	if store.listCalls != 0 {
		t.Fatalf("limit 0 must not hit the store")
	}

	loaded, _ := m.FetchMore(ctx, 1, nil, 3)
	more, err := m.FetchMore(ctx, 1, loaded, 2)
	if err != nil {
		t.Fatalf("fetch more: %v", err)
	}
	if len(more) != 2 || more[0].ContactID != 4 || more[1].ContactID != 5 {
		t.Fatalf("expected contacts 4 and 5, got %+v", more)
	}
}

func TestManager_RequeueAgent(t *testing.T) {
	repo := outreach.NewMemoryRepo()
	repo.PutContact(outreach.Contact{ID: 1, Phone: "555"})
	repo.PutContact(outreach.Contact{ID: 2, Phone: "555"})
	repo.Enqueue(1, 1, 1)
	repo.Enqueue(1, 2, 2)
	m := NewManager(repo)
	ctx := context.Background()

	m.ClaimNext(ctx, 1, "u1", false)
	m.ClaimNext(ctx, 1, "u2", false)

	n, err := m.RequeueAgent(ctx, 1, "u1")
	if err != nil || n != 1 {
		t.Fatalf("expected one requeued, n=%d err=%v", n, err)
	}
	e, _ := repo.GetQueueEntry(ctx, 1, 2)
	if !e.ClaimedBy("u2") {
		t.Fatalf("other agent's claim must be untouched: %+v", e)
	}
}

func TestManager_ReleaseClaim(t *testing.T) {
	repo := outreach.NewMemoryRepo()
	repo.PutContact(outreach.Contact{ID: 1, Phone: "555"})
	repo.Enqueue(1, 1, 1)
	m := NewManager(repo)
	ctx := context.Background()

	if _, err := m.ReleaseClaim(ctx, outreach.QueueEntry{}, "u1"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	e, ok, err := m.ClaimNext(ctx, 1, "u1", false)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if released, _ := m.ReleaseClaim(ctx, e, "u2"); released {
		t.Fatalf("released a claim held by another agent")
	}
	if released, err := m.ReleaseClaim(ctx, e, "u1"); err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}
	if got, _ := repo.GetQueueEntry(ctx, 1, 1); !got.Queued() {
		t.Fatalf("entry not queued: %+v", got)
	}
}
