package outreach

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"outreach-dialer/internal/calls"
)

func newMockRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepo(db), mock
}

var queueCols = []string{
	"id", "campaign_id", "contact_id", "status", "attempts", "queue_order",
	"dequeued_by", "dequeued_at", "dequeued_reason",
	"c_id", "workspace_id", "firstname", "surname", "phone", "address", "household_key",
}

var attemptCols = []string{
	"id", "contact_id", "campaign_id", "workspace_id", "user_id", "state", "disposition",
	"current_step", "result", "answered_at", "ended_at", "created_at",
}

func TestPostgresRepo_ClaimQueueEntry(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FOR UPDATE OF q SKIP LOCKED`).
		WithArgs(int64(1), "u1", true).
		WillReturnRows(sqlmock.NewRows(queueCols).AddRow(
			int64(5), int64(1), int64(10), "u1", 1, 3,
			nil, nil, nil,
			int64(10), "w1", "Ada", "L", "555-0100", "12 Main St", "12 main st",
		))

	e, ok, err := repo.ClaimQueueEntry(context.Background(), ClaimRequest{CampaignID: 1, AgentID: "u1", GroupByHousehold: true})
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if e.ID != 5 || e.Status != "u1" || e.Contact.Phone != "555-0100" || e.DequeuedAt != nil {
		t.Fatalf("unexpected entry %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_ClaimQueueEntryNoneAvailable(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`UPDATE campaign_queue q`).
		WillReturnRows(sqlmock.NewRows(queueCols))

	_, ok, err := repo.ClaimQueueEntry(context.Background(), ClaimRequest{CampaignID: 1, AgentID: "u1"})
	if err != nil {
		t.Fatalf("empty claim must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("expected no entry")
	}
}

func TestPostgresRepo_ClaimQueueEntryTransientError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`UPDATE campaign_queue q`).
		WillReturnError(&pgconn.PgError{Code: "40P01"})

	_, _, err := repo.ClaimQueueEntry(context.Background(), ClaimRequest{CampaignID: 1, AgentID: "u1"})
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestPostgresRepo_DequeueEntries(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`q.status <> 'dequeued'`).
		WithArgs(int64(1), int64(10), "u1", at, "no-answer", true).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DequeueEntries(context.Background(), DequeueRequest{
		CampaignID: 1, ContactID: 10, Household: true, By: "u1", Reason: "no-answer", At: at,
	})
	if err != nil || n != 3 {
		t.Fatalf("dequeue: n=%d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_UpdateAttemptNotApplied(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE outreach_attempt`).
		WithArgs(int64(7), "connected", "in-progress", sqlmock.AnyArg(), sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows(attemptCols))
	mock.ExpectQuery(`FROM outreach_attempt WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(attemptCols).AddRow(
			int64(7), int64(10), int64(1), "w1", "u1", "no-answer", "no-answer",
			"", []byte(`{}`), nil, created, created,
		))

	a, applied, err := repo.UpdateAttempt(context.Background(), 7, AttemptUpdate{State: StateConnected})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if applied {
		t.Fatalf("terminal attempt must not be updated")
	}
	if a.State != StateNoAnswer || a.EndedAt == nil {
		t.Fatalf("unexpected attempt %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_UpdateAttemptApplied(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE outreach_attempt`).
		WithArgs(int64(7), "completed", "completed", sqlmock.AnyArg(), sqlmock.AnyArg(), 3).
		WillReturnRows(sqlmock.NewRows(attemptCols).AddRow(
			int64(7), int64(10), int64(1), "w1", "u1", "completed", "completed",
			"", []byte(`{}`), now, now, now,
		))

	a, applied, err := repo.UpdateAttempt(context.Background(), 7, AttemptUpdate{State: StateCompleted, EndedAt: &now})
	if err != nil || !applied || a.Disposition != "completed" {
		t.Fatalf("update: %+v applied=%v err=%v", a, applied, err)
	}
}

func TestPostgresRepo_UpsertCall(t *testing.T) {
	repo, mock := newMockRepo(t)
	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"sid", "parent_call_sid", "outreach_attempt_id", "campaign_id", "contact_id", "workspace_id",
		"conference_id", "conference_tag", "direction", "to", "from", "status", "answered_by",
		"start_time", "end_time", "updated_at",
	}

	mock.ExpectQuery(`ON CONFLICT \(sid\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"CA1", nil, int64(7), int64(1), int64(10), "w1",
			nil, "u1", "outbound-api", "+12015550123", "+12015550100", "busy", nil,
			nil, updated, updated,
		))

	c, err := repo.UpsertCall(context.Background(), calls.Call{Sid: "CA1", Status: calls.CallStatusRinging})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if c.Status != calls.CallStatusBusy || c.AttemptID != 7 || c.ConferenceTag != "u1" || c.EndTime == nil {
		t.Fatalf("unexpected call %+v", c)
	}

	if _, err := repo.UpsertCall(context.Background(), calls.Call{}); err == nil {
		t.Fatalf("expected error for empty sid")
	}
}

func TestPostgresRepo_GetCampaignNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM campaign`).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetCampaign(context.Background(), 9); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresRepo_EnqueueContacts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(queue_order\), 0\)`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO campaign_queue`).
		WithArgs(int64(1), int64(10), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO campaign_queue`).
		WithArgs(int64(1), int64(11), 6).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := repo.EnqueueContacts(context.Background(), 1, []int64{10, 11})
	if err != nil || n != 1 {
		t.Fatalf("enqueue: n=%d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepo_ReleaseClaimOnlyWhileHeld(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`WHERE id = \$1 AND status = \$2`).
		WithArgs(int64(7), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`WHERE id = \$1 AND status = \$2`).
		WithArgs(int64(7), "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ReleaseClaim(context.Background(), 7, "u1")
	if err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}
	ok, err = repo.ReleaseClaim(context.Background(), 7, "u1")
	if err != nil || ok {
		t.Fatalf("second release should change nothing: ok=%v err=%v", ok, err)
	}
	if _, err := repo.ReleaseClaim(context.Background(), 7, QueueStatusQueued); err == nil {
		t.Fatalf("expected queued to be rejected as an agent id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
