package outreach

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("outreach: not found")
	ErrInvalidArgument = errors.New("outreach: invalid argument")
)

// ErrorKind classifies store failures so callers can decide whether to retry.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConstraint
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConstraint:
		return "constraint"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// StoreError is returned by every Repository method that fails.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("outreach: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match not-found store errors from any backend.
func (e *StoreError) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindNotFound
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsTransient(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == KindTransient
}

func notFound(op string) error {
	return &StoreError{Kind: KindNotFound, Op: op, Err: ErrNotFound}
}

// storeError classifies a database/sql or pgx error. nil stays nil.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &StoreError{Kind: KindNotFound, Op: op, Err: ErrNotFound}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return &StoreError{Kind: KindTransient, Op: op, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &StoreError{Kind: kindForSQLState(pgErr.Code), Op: op, Err: err}
	}
	return &StoreError{Kind: KindUnknown, Op: op, Err: err}
}

func kindForSQLState(code string) ErrorKind {
	switch {
	case code == "23505", code == "23503", code == "23502", code == "23514":
		return KindConstraint
	case code == "40001", code == "40P01", code == "55P03", code == "57P01":
		return KindTransient
	case strings.HasPrefix(code, "08"):
		return KindTransient
	default:
		return KindUnknown
	}
}
