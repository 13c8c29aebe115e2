package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/gateway"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/pricing"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/vault"
)

// DefaultPaymentMethod is recorded when the caller does not name one.
const DefaultPaymentMethod = "paypal"

// Failure codes recorded against payments.
const (
	FailureOrderCreation = "ORDER_CREATION_FAILED"
	FailureCapture       = "CAPTURE_FAILED"
	FailureCaptureDenied = "CAPTURE_DENIED"
	FailureOrderVoided   = "ORDER_VOIDED"
	FailureOrderMissing  = "ORDER_NOT_FOUND"
)

// LedgerConfig carries the ledger policy values.
type LedgerConfig struct {
	MaxSlidingScale       pricing.Percentage
	MinRefundReasonLength int
	GatewayTimeout        time.Duration
}

func (c LedgerConfig) withDefaults() LedgerConfig {
	if c.MaxSlidingScale <= 0 {
		c.MaxSlidingScale = pricing.DefaultMaxPercentage
	}
	if c.MinRefundReasonLength <= 0 {
		c.MinRefundReasonLength = 10
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 20 * time.Second
	}
	return c
}

// ProcessPayment is a request to charge a confirmed registration.
type ProcessPayment struct {
	RegistrationID uuid.UUID
	UserID         uuid.UUID
	BaseAmount     money.Money
	SlidingScale   pricing.Percentage
	Method         string
}

// CaptureNotification is an asynchronous capture outcome from the processor.
type CaptureNotification struct {
	PaymentID uuid.UUID `json:"payment_id"`
	CaptureID string    `json:"capture_id"`
	Reason    string    `json:"reason"`
}

type failure struct {
	code    string
	message string
}

// PaymentLedger records charges against registrations.
type PaymentLedger struct {
	store    repository.Store
	gateway  gateway.Gateway
	vault    vault.Encryptor
	calc     pricing.Calculator
	notifier *Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

// NewPaymentLedger constructs a PaymentLedger.
func NewPaymentLedger(store repository.Store, gw gateway.Gateway, enc vault.Encryptor, notifier *Notifier, logger *slog.Logger, cfg LedgerConfig) *PaymentLedger {
	cfg = cfg.withDefaults()
	return &PaymentLedger{
		store:    store,
		gateway:  gw,
		vault:    enc,
		calc:     pricing.NewCalculator(cfg.MaxSlidingScale),
		notifier: notifier,
		logger:   logger,
		timeout:  cfg.GatewayTimeout,
	}
}

// ProcessPayment validates the request, records a pending payment and opens a
// processor order for the sliding-scale charge. The processor call happens
// outside any lock and is never retried automatically.
func (l *PaymentLedger) ProcessPayment(ctx context.Context, req ProcessPayment) (*model.Payment, error) {
	// ── Step 1: Validate the percentage before any I/O. ───────────────────
	if err := l.calc.Validate(req.SlidingScale); err != nil {
		return nil, err
	}

	// ── Step 2: The registration must be confirmed and owned by the payer.
	reg, err := l.store.GetRegistration(ctx, req.RegistrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeRegistrationNotFound, "registration not found")
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if reg.Status != model.RegistrationConfirmed {
		return nil, apperr.Validation(apperr.CodeRegistrationNotConfirmed, "registration is %s; only confirmed registrations can be paid for", reg.Status)
	}
	if reg.RegistrantID != req.UserID {
		return nil, apperr.Validation(apperr.CodeRegistrationOwnerMismatch, "registration belongs to another member")
	}

	// ── Step 3: Refuse a second charge. ───────────────────────────────────
	if existing, err := l.store.GetLivePayment(ctx, reg.ID); err == nil {
		return nil, duplicatePaymentError(existing)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing payment: %w", err)
	}

	// ── Step 4: Compute the charge. ───────────────────────────────────────
	charge, err := l.calc.Charge(req.BaseAmount, req.SlidingScale)
	if err != nil {
		return nil, err
	}

	// ── Step 5: Record the pending payment with its audit entry. ──────────
	method := req.Method
	if method == "" {
		method = DefaultPaymentMethod
	}
	now := time.Now().UTC()
	payment := &model.Payment{
		ID:             uuid.New(),
		RegistrationID: reg.ID,
		UserID:         req.UserID,
		Amount:         charge,
		OriginalAmount: req.BaseAmount,
		SlidingScale:   req.SlidingScale,
		Status:         model.PaymentPending,
		Method:         method,
		RefundedAmount: money.Zero(charge.Currency),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = l.store.InLedgerTx(ctx, func(tx repository.LedgerTx) error {
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, newAudit(payment.ID, model.AuditPaymentInitiated, &req.UserID,
			fmt.Sprintf("Payment of %s initiated (%s%% sliding scale on %s)", charge.Display(), req.SlidingScale, req.BaseAmount.Display()),
			nil, paymentSnapshot(payment)))
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent request for the same registration.
			if existing, getErr := l.store.GetLivePayment(ctx, reg.ID); getErr == nil {
				return nil, duplicatePaymentError(existing)
			}
			return nil, apperr.Conflict(apperr.CodePaymentInProgress, "a payment for this registration is already in progress")
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}

	// ── Step 6: Open the processor order. ─────────────────────────────────
	gctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	res, err := l.gateway.CreateOrder(gctx, gateway.OrderRequest{
		PaymentID:   payment.ID,
		Amount:      charge,
		Description: fmt.Sprintf("Event registration %s", reg.ID),
	})
	if err != nil {
		l.markForReconciliation(ctx, payment.ID, "order creation", err)
		return nil, apperr.External(apperr.CodeGatewayOutcomeUnknown, "", err,
			"payment processor did not confirm the order; the payment is pending reconciliation")
	}
	if !res.OK() {
		if _, _, ferr := l.transition(ctx, payment.ID, model.PaymentFailed, nil, nil, &failure{code: FailureOrderCreation, message: res.Failure}); ferr != nil {
			l.logger.Error("failed to record order creation failure", "payment_id", payment.ID, "error", ferr)
		}
		return nil, apperr.External(apperr.CodeGatewayOrderCreationFailed, res.Failure, nil,
			"payment processor rejected the order")
	}

	// ── Step 7: Keep the encrypted order reference. ───────────────────────
	encOrder, err := l.vault.Encrypt(res.Value.ID)
	if err != nil {
		return nil, fmt.Errorf("encrypt order reference: %w", err)
	}
	var updated *model.Payment
	bctx := context.WithoutCancel(ctx)
	err = l.store.InLedgerTx(bctx, func(tx repository.LedgerTx) error {
		p, err := tx.LockPayment(bctx, payment.ID)
		if err != nil {
			return err
		}
		p.EncryptedOrderRef = encOrder
		p.UpdatedAt = time.Now().UTC()
		if err := tx.UpdatePayment(bctx, p); err != nil {
			return err
		}
		updated = p
		return tx.AppendAudit(bctx, newAudit(p.ID, model.AuditPaymentProcessed, &req.UserID,
			"Payment processor order created",
			nil, map[string]any{"order_status": res.Value.Status}))
	})
	if err != nil {
		return nil, fmt.Errorf("record processor order: %w", err)
	}

	l.logger.Info("payment initiated", "payment_id", updated.ID, "registration_id", reg.ID, "amount", charge.String(), "currency", charge.Currency)
	return updated, nil
}

// UpdatePaymentStatus moves a payment to a new status. Repeating the current
// status is a no-op. externalRef, when given for a completion, is the
// processor's capture id and is stored encrypted.
func (l *PaymentLedger) UpdatePaymentStatus(ctx context.Context, paymentID uuid.UUID, status model.PaymentStatus, externalRef *string, actorID *uuid.UUID) (*model.Payment, error) {
	p, _, err := l.transition(ctx, paymentID, status, externalRef, actorID, nil)
	return p, err
}

// CapturePayment captures the processor order behind a pending payment.
func (l *PaymentLedger) CapturePayment(ctx context.Context, paymentID uuid.UUID, actorID *uuid.UUID) (*model.Payment, error) {
	payment, err := l.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status.IsSettled() {
		return payment, nil
	}
	if payment.Status != model.PaymentPending || payment.EncryptedOrderRef == "" {
		return nil, apperr.Validation(apperr.CodePaymentNotCapturable, "payment is %s and has no open processor order", payment.Status)
	}

	orderID, err := l.vault.Decrypt(payment.EncryptedOrderRef)
	if err != nil {
		return nil, fmt.Errorf("decrypt order reference: %w", err)
	}

	gctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	res, err := l.gateway.CaptureOrder(gctx, orderID)
	if err != nil {
		l.markForReconciliation(ctx, payment.ID, "capture", err)
		return nil, apperr.External(apperr.CodeGatewayOutcomeUnknown, "", err,
			"payment processor did not confirm the capture; the payment is pending reconciliation")
	}
	if !res.OK() {
		if _, _, ferr := l.transition(ctx, payment.ID, model.PaymentFailed, nil, actorID, &failure{code: FailureCapture, message: res.Failure}); ferr != nil {
			l.logger.Error("failed to record capture failure", "payment_id", payment.ID, "error", ferr)
		}
		return nil, apperr.External(apperr.CodeGatewayCaptureFailed, res.Failure, nil, "payment processor declined the capture")
	}
	if res.Value.Status == gateway.CapturePending {
		// The processor finishes asynchronously and reports through the webhook.
		return payment, nil
	}
	captureID := res.Value.ID
	updated, _, err := l.transition(ctx, payment.ID, model.PaymentCompleted, &captureID, actorID, nil)
	return updated, err
}

// HandleWebhook verifies and applies a processor notification.
func (l *PaymentLedger) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !l.gateway.ValidateWebhookSignature(payload, signature) {
		return apperr.Validation(apperr.CodeInvalidWebhookSignature, "webhook signature is invalid")
	}
	ev, err := gateway.ParseWebhookEvent(payload)
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "webhook payload is invalid")
	}

	switch ev.EventType {
	case gateway.EventPaymentCaptureCompleted:
		paymentID, err := ev.Resource.PaymentID()
		if err != nil {
			return apperr.Validation(apperr.CodeInvalidRequest, "webhook resource has no payment reference")
		}
		return l.ApplyCaptureCompleted(ctx, CaptureNotification{PaymentID: paymentID, CaptureID: ev.Resource.ID})
	case gateway.EventPaymentCaptureDenied:
		paymentID, err := ev.Resource.PaymentID()
		if err != nil {
			return apperr.Validation(apperr.CodeInvalidRequest, "webhook resource has no payment reference")
		}
		return l.ApplyCaptureDenied(ctx, CaptureNotification{PaymentID: paymentID, CaptureID: ev.Resource.ID, Reason: ev.Summary})
	default:
		l.logger.Info("webhook event ignored", "event_type", ev.EventType, "event_id", ev.ID)
		return nil
	}
}

// ApplyCaptureCompleted completes a payment from an asynchronous capture notice.
// Notices for payments that have moved on are acknowledged and ignored.
func (l *PaymentLedger) ApplyCaptureCompleted(ctx context.Context, n CaptureNotification) error {
	captureID := n.CaptureID
	_, _, err := l.transition(ctx, n.PaymentID, model.PaymentCompleted, &captureID, nil, nil)
	return l.ignoreStale(n, err)
}

// ApplyCaptureDenied fails a payment from an asynchronous capture notice.
func (l *PaymentLedger) ApplyCaptureDenied(ctx context.Context, n CaptureNotification) error {
	reason := n.Reason
	if reason == "" {
		reason = "capture denied by payment processor"
	}
	_, _, err := l.transition(ctx, n.PaymentID, model.PaymentFailed, nil, nil, &failure{code: FailureCaptureDenied, message: reason})
	return l.ignoreStale(n, err)
}

func (l *PaymentLedger) ignoreStale(n CaptureNotification, err error) error {
	if errors.Is(err, apperr.Sentinel(apperr.KindValidation, apperr.CodeInvalidStatusTransition)) {
		l.logger.Warn("stale capture notification ignored", "payment_id", n.PaymentID, "error", err)
		return nil
	}
	return err
}

// GetPayment returns a single payment.
func (l *PaymentLedger) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p, err := l.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment not found")
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// GetPaymentForRegistration returns the registration's current payment.
func (l *PaymentLedger) GetPaymentForRegistration(ctx context.Context, registrationID uuid.UUID) (*model.Payment, error) {
	p, err := l.store.GetLivePayment(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodePaymentNotFound, "no payment recorded for this registration")
		}
		return nil, fmt.Errorf("get payment for registration: %w", err)
	}
	return p, nil
}

// ListAudit returns a payment's audit trail.
func (l *PaymentLedger) ListAudit(ctx context.Context, paymentID uuid.UUID) ([]model.AuditLogEntry, error) {
	if _, err := l.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return l.store.ListAudit(ctx, paymentID)
}

// ListFailures returns the processor failures recorded for a payment.
func (l *PaymentLedger) ListFailures(ctx context.Context, paymentID uuid.UUID) ([]model.PaymentFailure, error) {
	if _, err := l.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return l.store.ListPaymentFailures(ctx, paymentID)
}

var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentPending: {model.PaymentCompleted, model.PaymentFailed},
}

func canTransition(from, to model.PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition applies a status change with its audit entry in one transaction.
// It reports whether anything changed.
func (l *PaymentLedger) transition(ctx context.Context, paymentID uuid.UUID, status model.PaymentStatus, externalRef *string, actorID *uuid.UUID, fail *failure) (*model.Payment, bool, error) {
	var encRef string
	if status == model.PaymentCompleted && externalRef != nil && *externalRef != "" {
		var err error
		if encRef, err = l.vault.Encrypt(*externalRef); err != nil {
			return nil, false, fmt.Errorf("encrypt capture reference: %w", err)
		}
	}

	var updated *model.Payment
	var changed bool
	// Bookkeeping after a processor call must land even if the caller gave up.
	ctx = context.WithoutCancel(ctx)
	err := l.store.InLedgerTx(ctx, func(tx repository.LedgerTx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status == status {
			updated = p
			return nil
		}
		if !canTransition(p.Status, status) {
			return apperr.Validation(apperr.CodeInvalidStatusTransition, "cannot move payment from %s to %s", p.Status, status)
		}

		before := paymentSnapshot(p)
		now := time.Now().UTC()
		p.Status = status
		p.UpdatedAt = now

		action := model.AuditStatusChanged
		description := fmt.Sprintf("Payment status changed to %s", status)
		switch status {
		case model.PaymentCompleted:
			p.ProcessedAt = &now
			if encRef != "" {
				p.EncryptedCaptureRef = encRef
			}
			action = model.AuditPaymentCompleted
			description = fmt.Sprintf("Payment of %s completed", p.Amount.Display())
		case model.PaymentFailed:
			action = model.AuditPaymentFailed
			description = "Payment failed"
			if fail != nil {
				description = fmt.Sprintf("Payment failed: %s", fail.message)
				if err := tx.InsertPaymentFailure(ctx, &model.PaymentFailure{
					ID:             uuid.New(),
					PaymentID:      p.ID,
					FailureCode:    fail.code,
					FailureMessage: fail.message,
					FailedAt:       now,
				}); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, newAudit(p.ID, action, actorID, description, before, paymentSnapshot(p))); err != nil {
			return err
		}
		updated, changed = p, true
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperr.NotFound(apperr.CodePaymentNotFound, "payment not found")
		}
		return nil, false, err
	}

	if changed {
		l.logger.Info("payment status changed", "payment_id", updated.ID, "status", updated.Status)
		switch updated.Status {
		case model.PaymentCompleted:
			l.notifier.notify(ctx, RoutingPaymentCompleted, paymentEvent(updated))
		case model.PaymentFailed:
			l.notifier.notify(ctx, RoutingPaymentFailed, paymentEvent(updated))
		}
	}
	return updated, changed, nil
}

// markForReconciliation records that a processor call's outcome is unknown.
// The payment stays pending.
func (l *PaymentLedger) markForReconciliation(ctx context.Context, paymentID uuid.UUID, op string, cause error) {
	l.logger.Warn("payment processor outcome unknown", "payment_id", paymentID, "op", op, "error", cause)
	ctx = context.WithoutCancel(ctx)
	err := l.store.InLedgerTx(ctx, func(tx repository.LedgerTx) error {
		return tx.AppendAudit(ctx, newAudit(paymentID, model.AuditReconciliationRequired, nil,
			fmt.Sprintf("Payment processor %s outcome unknown: %v", op, cause), nil, nil))
	})
	if err != nil {
		l.logger.Error("failed to record reconciliation marker", "payment_id", paymentID, "error", err)
	}
}

func duplicatePaymentError(existing *model.Payment) error {
	if existing.Status.IsSettled() {
		return apperr.Conflict(apperr.CodePaymentAlreadyCompleted, "this registration has already been paid for")
	}
	return apperr.Conflict(apperr.CodePaymentInProgress, "a payment for this registration is already in progress")
}

func newAudit(paymentID uuid.UUID, action model.AuditAction, actorID *uuid.UUID, description string, oldValues, newValues map[string]any) *model.AuditLogEntry {
	return &model.AuditLogEntry{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		Action:      action,
		Description: description,
		OldValues:   oldValues,
		NewValues:   newValues,
		ActorID:     actorID,
		CreatedAt:   time.Now().UTC(),
	}
}

func paymentSnapshot(p *model.Payment) map[string]any {
	return map[string]any{
		"status":          string(p.Status),
		"amount":          p.Amount.String(),
		"currency":        string(p.Amount.Currency),
		"original_amount": p.OriginalAmount.String(),
		"sliding_scale":   p.SlidingScale.String(),
		"refunded_amount": p.RefundedAmount.String(),
	}
}
