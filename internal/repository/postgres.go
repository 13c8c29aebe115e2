package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
)

// PostgreSQL error codes the store translates.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout string
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: "5s"}
}

var _ Store = (*PostgresStore)(nil)

// mapPgError translates driver errors into the package's sentinel errors,
// keeping the original error in the chain.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return err
}

// InEventTx performs a unit of work while holding the event's row lock.
//
// ─────────────────────────────────────────────────────────────────────────────
// LAST-SEAT RACE
// ─────────────────────────────────────────────────────────────────────────────
//
// Naive read-then-write admission (BROKEN):
//
//	caller A: SELECT count(*) … WHERE status = 'confirmed'  → 9 of 10
//	caller B: SELECT count(*) … WHERE status = 'confirmed'  → 9 of 10
//	caller A: 9 < 10 → INSERT confirmed
//	caller B: 9 < 10 → INSERT confirmed
//	Result: 11 confirmed registrations for a 10-seat event.
//
// The same race hands out duplicate waitlist positions when both callers read
// the same MAX(waitlist_position).
//
// SELECT … FOR UPDATE on the event row makes every admission, cancellation and
// promotion for that event queue behind the lock, so each unit of work sees
// the counts and positions committed by the one before it. Other events are
// unaffected.
// ─────────────────────────────────────────────────────────────────────────────
func (s *PostgresStore) InEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx AdmissionTx, event *model.Event) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return mapPgError(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Surface a stuck lock as 55P03 instead of waiting forever.
	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", s.lockTimeout)); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	// ── Step 1: Acquire an exclusive row-level lock on the event. ──────────
	event, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return mapPgError(fmt.Errorf("lock event row: %w", err))
	}

	// ── Step 2: Decide and write under the lock. ──────────────────────────
	if err = fn(&pgAdmissionTx{q: tx}, event); err != nil {
		return err
	}

	// ── Step 3: Commit, releasing the lock to the next caller. ────────────
	if err = tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// InLedgerTx runs fn in a read-committed transaction. Callers lock the rows
// they change with LockPayment / LockRefund.
func (s *PostgresStore) InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return mapPgError(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgLedgerTx{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}
