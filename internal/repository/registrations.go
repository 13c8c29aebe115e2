package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
)

const eventColumns = `id, name, capacity, starts_at, ends_at, updated_at`

const registrationColumns = `id, event_id, registrant_id, status, waitlist_position,
	created_at, confirmed_at, cancelled_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Capacity, &e.StartsAt, &e.EndsAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.ID, &r.EventID, &r.RegistrantID, &r.Status, &r.WaitlistPosition,
		&r.CreatedAt, &r.ConfirmedAt, &r.CancelledAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	return &r, nil
}

func collectRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// ─── Events ───────────────────────────────────────────────────────────────────

// UpsertEvent mirrors an event's name, capacity and schedule from the events system.
func (s *PostgresStore) UpsertEvent(ctx context.Context, e *model.Event) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (id, name, capacity, starts_at, ends_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     capacity = EXCLUDED.capacity,
		     starts_at = EXCLUDED.starts_at,
		     ends_at = EXCLUDED.ends_at,
		     updated_at = EXCLUDED.updated_at`,
		e.ID, e.Name, e.Capacity, e.StartsAt, e.EndsAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	return scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

// ─── Registration reads ───────────────────────────────────────────────────────

// GetRegistration returns a single registration or ErrNotFound.
func (s *PostgresStore) GetRegistration(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	return scanRegistration(s.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
}

// ListRegistrations returns all registrations for an event in creation order.
func (s *PostgresStore) ListRegistrations(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return collectRegistrations(rows)
}

// ListWaitlist returns the event's waitlisted registrations by position.
func (s *PostgresStore) ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND status = 'waitlisted'
		 ORDER BY waitlist_position ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return collectRegistrations(rows)
}

// CountByStatus returns the number of registrations in each status.
func (s *PostgresStore) CountByStatus(ctx context.Context, eventID uuid.UUID) (map[model.RegistrationStatus]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, COUNT(*) FROM registrations WHERE event_id = $1 GROUP BY status`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.RegistrationStatus]int)
	for rows.Next() {
		var status model.RegistrationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan registration count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ─── Admission transaction ────────────────────────────────────────────────────

type pgAdmissionTx struct {
	q querier
}

func (t *pgAdmissionTx) FindLiveRegistration(ctx context.Context, eventID, registrantID uuid.UUID) (*model.Registration, error) {
	return scanRegistration(t.q.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND registrant_id = $2 AND status <> 'cancelled'`,
		eventID, registrantID,
	))
}

func (t *pgAdmissionTx) CountConfirmed(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'confirmed'`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, mapPgError(fmt.Errorf("count confirmed: %w", err))
	}
	return n, nil
}

func (t *pgAdmissionTx) MaxWaitlistPosition(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT COALESCE(MAX(waitlist_position), 0)
		 FROM registrations
		 WHERE event_id = $1 AND status = 'waitlisted'`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, mapPgError(fmt.Errorf("max waitlist position: %w", err))
	}
	return n, nil
}

func (t *pgAdmissionTx) InsertRegistration(ctx context.Context, r *model.Registration) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.EventID, r.RegistrantID, r.Status, r.WaitlistPosition,
		r.CreatedAt, r.ConfirmedAt, r.CancelledAt, r.UpdatedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("insert registration: %w", err))
	}
	return nil
}

func (t *pgAdmissionTx) LockRegistration(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	reg, err := scanRegistration(t.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, mapPgError(err)
	}
	return reg, err
}

func (t *pgAdmissionTx) UpdateRegistration(ctx context.Context, r *model.Registration) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE registrations
		 SET status = $2, waitlist_position = $3, confirmed_at = $4, cancelled_at = $5, updated_at = $6
		 WHERE id = $1`,
		r.ID, r.Status, r.WaitlistPosition, r.ConfirmedAt, r.CancelledAt, r.UpdatedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("update registration: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgAdmissionTx) FirstWaitlisted(ctx context.Context, eventID uuid.UUID) (*model.Registration, error) {
	reg, err := scanRegistration(t.q.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND status = 'waitlisted'
		 ORDER BY waitlist_position ASC
		 LIMIT 1
		 FOR UPDATE`,
		eventID,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, mapPgError(err)
	}
	return reg, err
}

func (t *pgAdmissionTx) ShiftWaitlist(ctx context.Context, eventID uuid.UUID, above int) error {
	_, err := t.q.Exec(ctx,
		`UPDATE registrations
		 SET waitlist_position = waitlist_position - 1, updated_at = $3
		 WHERE event_id = $1 AND status = 'waitlisted' AND waitlist_position > $2`,
		eventID, above, time.Now().UTC(),
	)
	if err != nil {
		return mapPgError(fmt.Errorf("shift waitlist: %w", err))
	}
	return nil
}
