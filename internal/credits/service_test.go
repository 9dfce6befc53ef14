package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestService_Admit(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Set("funded", 25)
	repo.Set("empty", 0)
	repo.Set("overdrawn", -3)
	svc := NewService(repo)
	ctx := context.Background()

	cases := map[string]bool{"funded": true, "empty": false, "overdrawn": false, "missing": false}
	for ws, want := range cases {
		got, err := svc.Admit(ctx, ws)
		if err != nil {
			t.Fatalf("%s: unexpected err %v", ws, err)
		}
		if got != want {
			t.Fatalf("%s: admit = %v, want %v", ws, got, want)
		}
	}

	if _, err := svc.Admit(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestPostgresRepo_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM workspace`).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "credits", "updated_at"}).AddRow("w1", int64(12), now))
	mock.ExpectQuery(`FROM workspace`).
		WithArgs("w2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "credits", "updated_at"}))

	repo := NewPostgresRepo(db)
	b, err := repo.GetBalance(context.Background(), "w1")
	if err != nil || b.Credits != 12 {
		t.Fatalf("balance: %+v err=%v", b, err)
	}
	if _, err := repo.GetBalance(context.Background(), "w2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
