// Package service implements the admission controller and the payment and
// refund ledgers: business rules, validation and orchestration between the
// HTTP handlers, the repository layer and the payment processor.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/repository"
)

// AdmissionService decides who gets a seat and who waits.
type AdmissionService struct {
	store      repository.Store
	notifier   *Notifier
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

// NewAdmissionService constructs an AdmissionService with its dependencies.
// maxRetries bounds how often a unit of work aborted by the database is re-run.
func NewAdmissionService(store repository.Store, notifier *Notifier, logger *slog.Logger, maxRetries int) *AdmissionService {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &AdmissionService{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    25 * time.Millisecond,
	}
}

// SyncEvent mirrors an event's name, capacity and schedule from the events system.
func (s *AdmissionService) SyncEvent(ctx context.Context, id uuid.UUID, req model.SyncEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "event name is required")
	}
	if req.Capacity <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "capacity must be a positive integer")
	}
	if req.Capacity > 100_000 {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "capacity cannot exceed 100,000")
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "event cannot end before it starts")
	}

	event := &model.Event{
		ID:       id,
		Name:     req.Name,
		Capacity: req.Capacity,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	}
	if err := s.store.UpsertEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("sync event: %w", err)
	}

	// A raised capacity frees seats for the waitlist. A lowered one evicts nobody.
	var promoted []*model.Registration
	err := s.withRetry(ctx, "sync event", func() error {
		promoted = nil
		return s.store.InEventTx(ctx, id, func(tx repository.AdmissionTx, locked *model.Event) error {
			now := time.Now().UTC()
			for {
				p, err := s.promote(ctx, tx, locked, now)
				if err != nil || p == nil {
					return err
				}
				promoted = append(promoted, p)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	for _, p := range promoted {
		s.logger.Info("waitlisted registration promoted", "registration_id", p.ID, "event_id", p.EventID)
		s.notifier.notify(ctx, RoutingRegistrationPromoted, registrationEvent(p))
	}
	return event, nil
}

// Register admits the registrant if a seat is free and waitlists them otherwise.
//
// The count, the decision and the insert happen while the event row is
// locked, so concurrent callers for the same event are admitted one at a
// time: with C free seats and N callers exactly min(N, C) are confirmed and
// the rest take waitlist positions 1..N-C in commit order.
func (s *AdmissionService) Register(ctx context.Context, eventID, registrantID uuid.UUID) (*model.Registration, error) {
	if eventID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "event id is required")
	}
	if registrantID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "registrant id is required")
	}

	var reg *model.Registration
	err := s.withRetry(ctx, "register", func() error {
		reg = nil
		return s.store.InEventTx(ctx, eventID, func(tx repository.AdmissionTx, event *model.Event) error {
			if !event.HasCapacity() {
				return apperr.NotFound(apperr.CodeEventNotFound, "event %s has no capacity configured", eventID)
			}

			// ── Step 1: One live registration per member and event. ────────
			if _, err := tx.FindLiveRegistration(ctx, eventID, registrantID); err == nil {
				return apperr.Conflict(apperr.CodeAlreadyRegistered, "you are already registered for this event")
			} else if !errors.Is(err, repository.ErrNotFound) {
				return err
			}

			// ── Step 2: Count confirmed seats under the lock. ──────────────
			confirmed, err := tx.CountConfirmed(ctx, eventID)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			r := &model.Registration{
				ID:           uuid.New(),
				EventID:      eventID,
				RegistrantID: registrantID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			// ── Step 3: Seat or waitlist. ──────────────────────────────────
			if confirmed < event.Capacity {
				r.Status = model.RegistrationConfirmed
				r.ConfirmedAt = &now
			} else {
				last, err := tx.MaxWaitlistPosition(ctx, eventID)
				if err != nil {
					return err
				}
				pos := last + 1
				r.Status = model.RegistrationWaitlisted
				r.WaitlistPosition = &pos
			}

			// ── Step 4: Persist. ───────────────────────────────────────────
			if err := tx.InsertRegistration(ctx, r); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return apperr.Conflict(apperr.CodeAlreadyRegistered, "you are already registered for this event")
				}
				return err
			}
			reg = r
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeEventNotFound, "event not found")
		}
		return nil, err
	}

	s.logger.Info("registration admitted",
		"registration_id", reg.ID, "event_id", eventID, "status", reg.Status)
	key := RoutingRegistrationConfirmed
	if reg.Status == model.RegistrationWaitlisted {
		key = RoutingRegistrationWaitlisted
	}
	s.notifier.notify(ctx, key, registrationEvent(reg))
	return reg, nil
}

// Cancel cancels a registration. Cancelling twice is a no-op. When a
// confirmed seat frees up, the registration at waitlist position 1 is
// promoted and everyone behind it moves up one place.
func (s *AdmissionService) Cancel(ctx context.Context, registrationID uuid.UUID) (*model.Registration, error) {
	current, err := s.store.GetRegistration(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeRegistrationNotFound, "registration not found")
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if current.Status == model.RegistrationCancelled {
		return current, nil
	}

	var cancelled, promoted *model.Registration
	var changed bool
	err = s.withRetry(ctx, "cancel", func() error {
		cancelled, promoted, changed = nil, nil, false
		return s.store.InEventTx(ctx, current.EventID, func(tx repository.AdmissionTx, event *model.Event) error {
			reg, err := tx.LockRegistration(ctx, registrationID)
			if err != nil {
				return err
			}
			// Re-read under the lock: a concurrent cancel may have won.
			if reg.Status == model.RegistrationCancelled {
				cancelled = reg
				return nil
			}

			prevStatus, prevPos := reg.Status, reg.WaitlistPosition
			now := time.Now().UTC()
			reg.Status = model.RegistrationCancelled
			reg.CancelledAt = &now
			reg.WaitlistPosition = nil
			reg.UpdatedAt = now
			if err := tx.UpdateRegistration(ctx, reg); err != nil {
				return err
			}
			cancelled, changed = reg, true

			switch prevStatus {
			case model.RegistrationWaitlisted:
				return tx.ShiftWaitlist(ctx, event.ID, *prevPos)
			case model.RegistrationConfirmed:
				p, err := s.promote(ctx, tx, event, now)
				promoted = p
				return err
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeRegistrationNotFound, "registration not found")
		}
		return nil, err
	}

	if changed {
		s.logger.Info("registration cancelled", "registration_id", cancelled.ID, "event_id", cancelled.EventID)
		s.notifier.notify(ctx, RoutingRegistrationCancelled, registrationEvent(cancelled))
	}
	if promoted != nil {
		s.logger.Info("waitlisted registration promoted", "registration_id", promoted.ID, "event_id", promoted.EventID)
		s.notifier.notify(ctx, RoutingRegistrationPromoted, registrationEvent(promoted))
	}
	return cancelled, nil
}

// promote confirms the head of the waitlist if a seat is free. At most one
// registration is promoted per call.
func (s *AdmissionService) promote(ctx context.Context, tx repository.AdmissionTx, event *model.Event, now time.Time) (*model.Registration, error) {
	confirmed, err := tx.CountConfirmed(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if confirmed >= event.Capacity {
		return nil, nil
	}

	next, err := tx.FirstWaitlisted(ctx, event.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	pos := *next.WaitlistPosition
	next.Status = model.RegistrationConfirmed
	next.WaitlistPosition = nil
	next.ConfirmedAt = &now
	next.UpdatedAt = now
	if err := tx.UpdateRegistration(ctx, next); err != nil {
		return nil, err
	}
	if err := tx.ShiftWaitlist(ctx, event.ID, pos); err != nil {
		return nil, err
	}
	return next, nil
}

// GetRegistration returns a single registration.
func (s *AdmissionService) GetRegistration(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	reg, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeRegistrationNotFound, "registration not found")
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// ListRegistrations returns all registrations for an event.
func (s *AdmissionService) ListRegistrations(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListRegistrations(ctx, eventID)
}

// ListWaitlist returns an event's waitlist in promotion order.
func (s *AdmissionService) ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListWaitlist(ctx, eventID)
}

// Occupancy reports capacity, confirmed and waitlisted counts for an event.
func (s *AdmissionService) Occupancy(ctx context.Context, eventID uuid.UUID) (*model.Occupancy, error) {
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountByStatus(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("occupancy: %w", err)
	}
	occ := &model.Occupancy{
		EventID:    eventID,
		Capacity:   event.Capacity,
		Confirmed:  counts[model.RegistrationConfirmed],
		Waitlisted: counts[model.RegistrationWaitlisted],
	}
	occ.Remaining = max(occ.Capacity-occ.Confirmed, 0)
	return occ, nil
}

func (s *AdmissionService) getEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeEventNotFound, "event not found")
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// withRetry re-runs fn while the database reports serialization failures,
// deadlocks or lock timeouts, up to maxRetries extra attempts.
func (s *AdmissionService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt)*s.backoff + time.Duration(rand.Int64N(int64(s.backoff)+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			s.logger.Warn("retrying admission unit of work", "op", op, "attempt", attempt, "error", err)
		}
		err = fn()
		if err == nil || !errors.Is(err, repository.ErrSerialization) {
			return err
		}
	}
	return apperr.Transient(apperr.CodeAdmissionRetriesExhausted, err,
		"%s could not complete after %d attempts; please retry", op, s.maxRetries+1)
}
