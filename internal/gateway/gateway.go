// Package gateway defines the payment-processor capability the ledgers depend on.
//
// Every call returns a Result and an error. A Result holding a Failure is a
// definitive answer from the processor (a decline, an invalid request). A
// non-nil error means the outcome is unknown: the request may or may not have
// taken effect, so the caller must leave its records pending for
// reconciliation instead of assuming failure.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
)

// Result carries either a value or a processor-supplied failure message.
type Result[T any] struct {
	Value   T
	Failure string
	ok      bool
}

// Success wraps a value returned by the processor.
func Success[T any](v T) Result[T] {
	return Result[T]{Value: v, ok: true}
}

// Failed wraps a definitive processor failure.
func Failed[T any](msg string) Result[T] {
	return Result[T]{Failure: msg}
}

// OK reports whether the processor accepted the request.
func (r Result[T]) OK() bool { return r.ok }

// Order statuses reported by the processor.
const (
	OrderCreated   = "CREATED"
	OrderApproved  = "APPROVED"
	OrderCompleted = "COMPLETED"
	OrderVoided    = "VOIDED"

	CaptureCompleted = "COMPLETED"
	CaptureDeclined  = "DECLINED"
	CapturePending   = "PENDING"

	RefundCompleted = "COMPLETED"
	RefundPending   = "PENDING"
)

// OrderRequest asks the processor to open a checkout order for a payment.
type OrderRequest struct {
	PaymentID   uuid.UUID
	Amount      money.Money
	Description string
}

// Order is the processor's view of a checkout order.
type Order struct {
	ID     string
	Status string
	// CaptureID is set once the order has been captured.
	CaptureID string
}

// Capture is the result of capturing an approved order.
type Capture struct {
	ID     string
	Status string
}

// RefundRequest refunds part or all of a captured payment.
type RefundRequest struct {
	CaptureID string
	Amount    money.Money
	Reason    string
	// IdempotencyKey is forwarded so a repeated request cannot refund twice.
	IdempotencyKey string
}

// RefundReceipt is the processor's record of a refund.
type RefundReceipt struct {
	ID     string
	Status string
}

// Gateway is the payment-processor capability.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Result[Order], error)
	CaptureOrder(ctx context.Context, orderID string) (Result[Capture], error)
	// GetOrder is read-only and safe to repeat.
	GetOrder(ctx context.Context, orderID string) (Result[Order], error)
	RefundCapture(ctx context.Context, req RefundRequest) (Result[RefundReceipt], error)
	ValidateWebhookSignature(payload []byte, signature string) bool
}

// Webhook event types delivered by the processor.
const (
	EventCheckoutOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	EventPaymentCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventPaymentCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventPaymentCapturePending   = "PAYMENT.CAPTURE.PENDING"
	EventCustomerDisputeCreated  = "CUSTOMER.DISPUTE.CREATED"
)

// WebhookEvent is a processor notification.
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Summary   string          `json:"summary"`
	Resource  WebhookResource `json:"resource"`
}

// WebhookResource is the object a webhook event refers to.
type WebhookResource struct {
	ID string `json:"id"`
	// CustomID echoes the payment id sent with the order.
	CustomID string `json:"custom_id"`
	Status   string `json:"status"`
}

// ParseWebhookEvent decodes a webhook payload.
func ParseWebhookEvent(payload []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode webhook event: %w", err)
	}
	if ev.EventType == "" {
		return WebhookEvent{}, fmt.Errorf("decode webhook event: missing event_type")
	}
	return ev, nil
}

// PaymentID extracts the payment id the resource was created for.
func (r WebhookResource) PaymentID() (uuid.UUID, error) {
	return uuid.Parse(r.CustomID)
}
