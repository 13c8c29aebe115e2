// Package repository implements persistence for registrations, payments,
// refunds and the payment audit log. It uses pgx directly (no ORM) for
// transparency, and ships an in-memory store with the same contract for tests
// and local runs.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule: a second
// live registration for the same member and event, or a second non-failed
// payment for the same registration.
var ErrDuplicate = errors.New("duplicate record")

// ErrSerialization is returned when the database aborted a transaction because
// of a serialization failure, a deadlock or a lock timeout. The whole unit of
// work may be retried.
var ErrSerialization = errors.New("transaction aborted by concurrent update")

// AdmissionTx is the set of operations available while an event row is locked.
type AdmissionTx interface {
	FindLiveRegistration(ctx context.Context, eventID, registrantID uuid.UUID) (*model.Registration, error)
	CountConfirmed(ctx context.Context, eventID uuid.UUID) (int, error)
	MaxWaitlistPosition(ctx context.Context, eventID uuid.UUID) (int, error)
	InsertRegistration(ctx context.Context, reg *model.Registration) error
	LockRegistration(ctx context.Context, id uuid.UUID) (*model.Registration, error)
	UpdateRegistration(ctx context.Context, reg *model.Registration) error
	FirstWaitlisted(ctx context.Context, eventID uuid.UUID) (*model.Registration, error)
	// ShiftWaitlist moves every waitlisted registration above position up by one place.
	ShiftWaitlist(ctx context.Context, eventID uuid.UUID, above int) error
}

// LedgerTx is the set of operations available inside a payment ledger transaction.
type LedgerTx interface {
	LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	InsertPayment(ctx context.Context, p *model.Payment) error
	UpdatePayment(ctx context.Context, p *model.Payment) error
	InsertPaymentFailure(ctx context.Context, f *model.PaymentFailure) error
	RefundTotals(ctx context.Context, paymentID uuid.UUID) (RefundTotals, error)
	InsertRefund(ctx context.Context, r *model.Refund) error
	LockRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error)
	UpdateRefund(ctx context.Context, r *model.Refund) error
	AppendAudit(ctx context.Context, e *model.AuditLogEntry) error
}

// RefundTotals sums a payment's refunds by state, in minor units.
type RefundTotals struct {
	Completed int64
	Pending   int64
}

// Store is the persistence contract used by the services.
type Store interface {
	// InEventTx locks the event row and runs fn. The lock is held until fn
	// returns; fn's error rolls the transaction back.
	InEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx AdmissionTx, event *model.Event) error) error
	// InLedgerTx runs fn in one transaction.
	InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error

	UpsertEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*model.Registration, error)
	ListRegistrations(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error)
	ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]model.Registration, error)
	CountByStatus(ctx context.Context, eventID uuid.UUID) (map[model.RegistrationStatus]int, error)

	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	// GetLivePayment returns the registration's non-failed payment, if any.
	GetLivePayment(ctx context.Context, registrationID uuid.UUID) (*model.Payment, error)
	ListStalePayments(ctx context.Context, createdBefore time.Time, limit int) ([]model.Payment, error)
	ListPaymentFailures(ctx context.Context, paymentID uuid.UUID) ([]model.PaymentFailure, error)
	GetRefundTotals(ctx context.Context, paymentID uuid.UUID) (RefundTotals, error)
	GetRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error)
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error)
	ListAudit(ctx context.Context, paymentID uuid.UUID) ([]model.AuditLogEntry, error)
}
