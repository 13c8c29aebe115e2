package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
)

// Routing keys for domain events published after commit.
const (
	RoutingRegistrationConfirmed  = "registration.confirmed"
	RoutingRegistrationWaitlisted = "registration.waitlisted"
	RoutingRegistrationCancelled  = "registration.cancelled"
	RoutingRegistrationPromoted   = "registration.promoted"
	RoutingPaymentCompleted       = "payment.completed"
	RoutingPaymentFailed          = "payment.failed"
	RoutingRefundCompleted        = "refund.completed"
	RoutingRefundFailed           = "refund.failed"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Notifier publishes domain events. Delivery is best effort: a failed publish
// is logged and never undoes the committed change.
type Notifier struct {
	publisher Publisher
	exchange  string
	logger    *slog.Logger
}

// NewNotifier constructs a Notifier. A nil publisher disables publishing.
func NewNotifier(publisher Publisher, exchange string, logger *slog.Logger) *Notifier {
	return &Notifier{publisher: publisher, exchange: exchange, logger: logger}
}

func (n *Notifier) notify(ctx context.Context, routingKey string, payload any) {
	if n == nil || n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(context.WithoutCancel(ctx), n.exchange, routingKey, payload); err != nil {
		n.logger.Warn("domain event publish failed", "routing_key", routingKey, "error", err)
	}
}

// RegistrationEvent is the payload of registration.* events.
type RegistrationEvent struct {
	RegistrationID   uuid.UUID                `json:"registration_id"`
	EventID          uuid.UUID                `json:"event_id"`
	RegistrantID     uuid.UUID                `json:"registrant_id"`
	Status           model.RegistrationStatus `json:"status"`
	WaitlistPosition *int                     `json:"waitlist_position,omitempty"`
	OccurredAt       time.Time                `json:"occurred_at"`
}

func registrationEvent(r *model.Registration) RegistrationEvent {
	return RegistrationEvent{
		RegistrationID:   r.ID,
		EventID:          r.EventID,
		RegistrantID:     r.RegistrantID,
		Status:           r.Status,
		WaitlistPosition: r.WaitlistPosition,
		OccurredAt:       time.Now().UTC(),
	}
}

// PaymentEvent is the payload of payment.* events.
type PaymentEvent struct {
	PaymentID      uuid.UUID           `json:"payment_id"`
	RegistrationID uuid.UUID           `json:"registration_id"`
	UserID         uuid.UUID           `json:"user_id"`
	Status         model.PaymentStatus `json:"status"`
	Amount         money.Money         `json:"amount"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func paymentEvent(p *model.Payment) PaymentEvent {
	return PaymentEvent{
		PaymentID:      p.ID,
		RegistrationID: p.RegistrationID,
		UserID:         p.UserID,
		Status:         p.Status,
		Amount:         p.Amount,
		OccurredAt:     time.Now().UTC(),
	}
}

// RefundEvent is the payload of refund.* events.
type RefundEvent struct {
	RefundID   uuid.UUID          `json:"refund_id"`
	PaymentID  uuid.UUID          `json:"payment_id"`
	Amount     money.Money        `json:"amount"`
	Status     model.RefundStatus `json:"status"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func refundEvent(r *model.Refund) RefundEvent {
	return RefundEvent{
		RefundID:   r.ID,
		PaymentID:  r.PaymentID,
		Amount:     r.Amount,
		Status:     r.Status,
		OccurredAt: time.Now().UTC(),
	}
}
