package outreach

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestStoreError_Classification(t *testing.T) {
	if storeError("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	err := storeError("get call", sql.ErrNoRows)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	err = storeError("upsert", &pgconn.PgError{Code: "23505"})
	var se *StoreError
	if !errors.As(err, &se) || se.Kind != KindConstraint {
		t.Fatalf("expected constraint, got %v", err)
	}

	if !IsTransient(storeError("claim", &pgconn.PgError{Code: "40001"})) {
		t.Fatalf("serialization failure should be transient")
	}
	if !IsTransient(storeError("claim", &pgconn.PgError{Code: "08006"})) {
		t.Fatalf("connection failure should be transient")
	}
	if !IsTransient(storeError("claim", context.DeadlineExceeded)) {
		t.Fatalf("deadline should be transient")
	}
	if IsTransient(storeError("claim", errors.New("boom"))) {
		t.Fatalf("plain error should be unknown")
	}
}

func TestStoreError_NotDoubleWrapped(t *testing.T) {
	inner := notFound("get attempt")
	if got := storeError("outer", inner); got != inner {
		t.Fatalf("expected store error passed through")
	}
}
