// Package model defines the core domain types for event admission and the
// payment and refund ledgers.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/pricing"
)

// Event is the slice of an externally managed event the admission controller needs.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Capacity  int        `json:"capacity"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasCapacity reports whether a seat limit is configured for the event.
func (e *Event) HasCapacity() bool {
	return e.Capacity > 0
}

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationPending    RegistrationStatus = "pending"
	RegistrationConfirmed  RegistrationStatus = "confirmed"
	RegistrationWaitlisted RegistrationStatus = "waitlisted"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

// Registration is a member's claim on a seat, or on a place in the waitlist.
type Registration struct {
	ID               uuid.UUID          `json:"id"`
	EventID          uuid.UUID          `json:"event_id"`
	RegistrantID     uuid.UUID          `json:"registrant_id"`
	Status           RegistrationStatus `json:"status"`
	WaitlistPosition *int               `json:"waitlist_position,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	ConfirmedAt      *time.Time         `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// IsLive reports whether the registration still holds a seat or waitlist place.
func (r *Registration) IsLive() bool {
	return r.Status != RegistrationCancelled
}

// Occupancy summarises seat usage for an event.
type Occupancy struct {
	EventID    uuid.UUID `json:"event_id"`
	Capacity   int       `json:"capacity"`
	Confirmed  int       `json:"confirmed"`
	Waitlisted int       `json:"waitlisted"`
	Remaining  int       `json:"remaining"`
}

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentCompleted         PaymentStatus = "completed"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// IsRefundable reports whether refunds may be issued against a payment in this state.
func (s PaymentStatus) IsRefundable() bool {
	return s == PaymentCompleted || s == PaymentPartiallyRefunded
}

// IsSettled reports whether money has been collected for the payment.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentCompleted || s == PaymentPartiallyRefunded || s == PaymentRefunded
}

// Payment is a single charge against a registration.
type Payment struct {
	ID                  uuid.UUID          `json:"id"`
	RegistrationID      uuid.UUID          `json:"registration_id"`
	UserID              uuid.UUID          `json:"user_id"`
	Amount              money.Money        `json:"amount"`
	OriginalAmount      money.Money        `json:"original_amount"`
	SlidingScale        pricing.Percentage `json:"sliding_scale_percentage"`
	Status              PaymentStatus      `json:"status"`
	Method              string             `json:"method"`
	EncryptedOrderRef   string             `json:"-"`
	EncryptedCaptureRef string             `json:"-"`
	RefundedAmount      money.Money        `json:"refunded_amount"`
	ProcessedAt         *time.Time         `json:"processed_at,omitempty"`
	RefundedAt          *time.Time         `json:"refunded_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// PaymentFailure records one processor failure against a payment.
type PaymentFailure struct {
	ID             uuid.UUID `json:"id"`
	PaymentID      uuid.UUID `json:"payment_id"`
	FailureCode    string    `json:"failure_code"`
	FailureMessage string    `json:"failure_message"`
	FailedAt       time.Time `json:"failed_at"`
}

// RefundStatus is the lifecycle state of a refund.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

// Refund returns part or all of a payment.
type Refund struct {
	ID                  uuid.UUID      `json:"id"`
	PaymentID           uuid.UUID      `json:"payment_id"`
	Amount              money.Money    `json:"amount"`
	Status              RefundStatus   `json:"status"`
	Reason              string         `json:"reason"`
	EncryptedGatewayRef string         `json:"-"`
	ProcessedBy         uuid.UUID      `json:"processed_by"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	ProcessedAt         *time.Time     `json:"processed_at,omitempty"`
}

// AuditAction labels an audit log entry.
type AuditAction string

const (
	AuditPaymentInitiated       AuditAction = "PaymentInitiated"
	AuditPaymentProcessed       AuditAction = "PaymentProcessed"
	AuditPaymentCompleted       AuditAction = "PaymentCompleted"
	AuditPaymentFailed          AuditAction = "PaymentFailed"
	AuditStatusChanged          AuditAction = "StatusChanged"
	AuditRefundInitiated        AuditAction = "RefundInitiated"
	AuditRefundCompleted        AuditAction = "RefundCompleted"
	AuditRefundFailed           AuditAction = "RefundFailed"
	AuditReconciliationRequired AuditAction = "ReconciliationRequired"
)

// AuditLogEntry is an immutable record of a change to a payment or one of its refunds.
type AuditLogEntry struct {
	ID          uuid.UUID      `json:"id"`
	PaymentID   uuid.UUID      `json:"payment_id"`
	Action      AuditAction    `json:"action"`
	Description string         `json:"description"`
	OldValues   map[string]any `json:"old_values,omitempty"`
	NewValues   map[string]any `json:"new_values,omitempty"`
	ActorID     *uuid.UUID     `json:"actor_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SyncEventRequest is the payload for mirroring an event's capacity from the events system.
type SyncEventRequest struct {
	Name     string     `json:"name" validate:"required,max=200"`
	Capacity int        `json:"capacity" validate:"required,gt=0,lte=100000"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// ProcessPaymentRequest is the HTTP payload for charging a registration.
type ProcessPaymentRequest struct {
	BaseAmount             string `json:"base_amount" validate:"required,numeric"`
	Currency               string `json:"currency" validate:"omitempty,iso4217"`
	SlidingScalePercentage string `json:"sliding_scale_percentage" validate:"omitempty,numeric"`
	Method                 string `json:"method" validate:"omitempty,max=50"`
}

// ProcessRefundRequest is the HTTP payload for refunding a payment.
type ProcessRefundRequest struct {
	Amount   string         `json:"amount" validate:"required,numeric"`
	Reason   string         `json:"reason" validate:"required,max=1000"`
	Metadata map[string]any `json:"metadata"`
}

// UpdatePaymentStatusRequest is the HTTP payload for an operator status change.
type UpdatePaymentStatusRequest struct {
	Status      PaymentStatus `json:"status" validate:"required,oneof=pending completed failed"`
	ExternalRef *string       `json:"external_ref"`
}

// ResolveRefundRequest is the HTTP payload for settling a refund left pending.
type ResolveRefundRequest struct {
	Status      RefundStatus `json:"status" validate:"required,oneof=completed failed"`
	ExternalRef *string      `json:"external_ref"`
	Reason      string       `json:"reason" validate:"max=1000"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error            string `json:"error"`
	Code             string `json:"code,omitempty"`
	ProcessorMessage string `json:"processor_message,omitempty"`
}

// RegistrationResult summarises the outcome of a single registration attempt.
// Used by the concurrent admission tests.
type RegistrationResult struct {
	RegistrantID uuid.UUID
	Registration *Registration
	Error        error
}
