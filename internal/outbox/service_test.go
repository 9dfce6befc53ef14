package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"outreach-dialer/internal/outreach"
)

func TestService_AppendRequiresWorkspaceAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventAttemptDispositioned}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{WorkspaceID: "w"}); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_AttemptDispositioned(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	a := outreach.Attempt{ID: 3, ContactID: 10, CampaignID: 1, WorkspaceID: "w1", UserID: "u1", State: outreach.StateNoAnswer, Disposition: "no-answer"}
	if err := svc.AttemptDispositioned(context.Background(), a, "CA1"); err != nil {
		t.Fatalf("append: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || e.CreatedAt.IsZero() || e.CallSid != "CA1" || e.Type != EventAttemptDispositioned {
		t.Fatalf("unexpected event %+v", e)
	}
	var p DispositionPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Disposition != "no-answer" || p.ContactID != 10 {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestPostgresRepo_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO outbox_event`).
		WithArgs("e1", "w1", "attempt.dispositioned", int64(1), int64(3), "CA1", []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewService(NewPostgresRepo(db))
	if err := svc.Append(context.Background(), Event{
		ID: "e1", WorkspaceID: "w1", Type: EventAttemptDispositioned, CampaignID: 1, AttemptID: 3, CallSid: "CA1",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
