package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/gateway"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/vault"
)

// ProcessRefund is a request to return part or all of a payment.
type ProcessRefund struct {
	PaymentID uuid.UUID
	// Amount with an empty currency is taken to be in the payment's currency.
	Amount      money.Money
	Reason      string
	ProcessedBy uuid.UUID
	Metadata    map[string]any
}

// ResolveRefund is an operator's verdict on a pending refund.
type ResolveRefund struct {
	RefundID uuid.UUID
	Status   model.RefundStatus
	// ExternalRef is the processor's refund id, when the operator has one.
	ExternalRef *string
	Reason      string
	ResolvedBy  uuid.UUID
}

// RefundLedger issues refunds against completed payments.
type RefundLedger struct {
	store        repository.Store
	gateway      gateway.Gateway
	vault        vault.Encryptor
	notifier     *Notifier
	logger       *slog.Logger
	minReasonLen int
	timeout      time.Duration
}

// NewRefundLedger constructs a RefundLedger.
func NewRefundLedger(store repository.Store, gw gateway.Gateway, enc vault.Encryptor, notifier *Notifier, logger *slog.Logger, cfg LedgerConfig) *RefundLedger {
	cfg = cfg.withDefaults()
	return &RefundLedger{
		store:        store,
		gateway:      gw,
		vault:        enc,
		notifier:     notifier,
		logger:       logger,
		minReasonLen: cfg.MinRefundReasonLength,
		timeout:      cfg.GatewayTimeout,
	}
}

// ProcessRefund validates and issues a refund.
//
// The amount is reserved while the payment row is locked: pending refunds
// count against the available balance, so two concurrent refunds can never
// together exceed what was charged. The processor is called after the lock is
// released. A processor decline marks the refund failed and is returned as a
// value, not an error.
func (l *RefundLedger) ProcessRefund(ctx context.Context, req ProcessRefund) (*model.Refund, error) {
	// ── Step 1: Eligibility. ──────────────────────────────────────────────
	payment, err := l.store.GetPayment(ctx, req.PaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment not found")
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if !payment.Status.IsRefundable() {
		return nil, notEligible(payment)
	}

	// ── Step 2: Reason and amount. ────────────────────────────────────────
	reason := strings.TrimSpace(req.Reason)
	if utf8.RuneCountInString(reason) < l.minReasonLen {
		return nil, apperr.Validation(apperr.CodeReasonTooShort, "refund reason must be at least %d characters", l.minReasonLen)
	}
	amount := req.Amount
	if amount.Currency == "" {
		amount.Currency = payment.Amount.Currency
	}
	if !amount.IsPositive() {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "refund amount must be positive")
	}
	if amount.Currency != payment.Amount.Currency {
		return nil, apperr.Validation(apperr.CodeCurrencyMismatch, "refund currency %s does not match payment currency %s", amount.Currency, payment.Amount.Currency)
	}

	// ── Step 3: Reserve the amount under the payment lock. ────────────────
	var refund *model.Refund
	var encCapture string
	err = l.store.InLedgerTx(ctx, func(tx repository.LedgerTx) error {
		p, err := tx.LockPayment(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if !p.Status.IsRefundable() {
			return notEligible(p)
		}
		totals, err := tx.RefundTotals(ctx, p.ID)
		if err != nil {
			return err
		}
		available := max(p.Amount.Minor-totals.Completed-totals.Pending, 0)
		if amount.Minor > available {
			return apperr.Validation(apperr.CodeRefundExceedsAvailable,
				"refund exceeds maximum available: %s remaining", money.New(available, p.Amount.Currency).Display())
		}

		now := time.Now().UTC()
		refund = &model.Refund{
			ID:          uuid.New(),
			PaymentID:   p.ID,
			Amount:      amount,
			Status:      model.RefundPending,
			Reason:      reason,
			ProcessedBy: req.ProcessedBy,
			Metadata:    maps.Clone(req.Metadata),
			CreatedAt:   now,
		}
		if err := tx.InsertRefund(ctx, refund); err != nil {
			return err
		}
		encCapture = p.EncryptedCaptureRef
		return tx.AppendAudit(ctx, newAudit(p.ID, model.AuditRefundInitiated, &req.ProcessedBy,
			fmt.Sprintf("Refund of %s initiated: %s", amount.Display(), reason),
			map[string]any{"refunded_amount": p.RefundedAmount.String(), "available": money.New(available, p.Amount.Currency).String()},
			map[string]any{"refund_id": refund.ID.String(), "amount": amount.String(), "reason": reason}))
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment not found")
		}
		return nil, err
	}

	// ── Step 4: Payments captured outside the processor are refunded by hand.
	if encCapture == "" {
		l.logger.Info("no capture reference; recording manual refund", "payment_id", payment.ID, "refund_id", refund.ID)
		return l.complete(ctx, refund.ID, "", true, nil)
	}

	captureID, err := l.vault.Decrypt(encCapture)
	if err != nil {
		l.logger.Error("capture reference unreadable", "payment_id", payment.ID, "error", err)
		if _, ferr := l.fail(ctx, refund.ID, "capture reference could not be read", nil); ferr != nil {
			l.logger.Error("failed to release refund reservation", "refund_id", refund.ID, "error", ferr)
		}
		return nil, fmt.Errorf("decrypt capture reference: %w", err)
	}

	// ── Step 5: Ask the processor, outside any lock. ──────────────────────
	gctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	res, err := l.gateway.RefundCapture(gctx, gateway.RefundRequest{
		CaptureID:      captureID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: refund.ID.String(),
	})
	if err != nil {
		l.markForReconciliation(ctx, refund, err)
		return nil, apperr.External(apperr.CodeGatewayOutcomeUnknown, "", err,
			"payment processor did not confirm the refund; it is pending reconciliation")
	}
	if !res.OK() {
		return l.fail(ctx, refund.ID, res.Failure, nil)
	}
	return l.complete(ctx, refund.ID, res.Value.ID, false, nil)
}

// ResolveRefund settles a pending refund whose processor outcome was never
// confirmed. Completing it counts it against the payment; failing it releases
// its reservation. Repeating the refund's current status is a no-op.
func (l *RefundLedger) ResolveRefund(ctx context.Context, req ResolveRefund) (*model.Refund, error) {
	current, err := l.GetRefund(ctx, req.RefundID)
	if err != nil {
		return nil, err
	}
	if current.Status == req.Status {
		return current, nil
	}
	if current.Status != model.RefundPending {
		return nil, apperr.Validation(apperr.CodeInvalidStatusTransition,
			"refund is %s; only pending refunds can be resolved", current.Status)
	}

	switch req.Status {
	case model.RefundCompleted:
		ref := ""
		if req.ExternalRef != nil {
			ref = strings.TrimSpace(*req.ExternalRef)
		}
		return l.complete(ctx, req.RefundID, ref, ref == "", &req.ResolvedBy)
	case model.RefundFailed:
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = "resolved as failed by an operator"
		}
		return l.fail(ctx, req.RefundID, reason, &req.ResolvedBy)
	default:
		return nil, apperr.Validation(apperr.CodeInvalidStatusTransition,
			"refunds can only be resolved to %s or %s", model.RefundCompleted, model.RefundFailed)
	}
}

// GetMaximumRefundAmount returns the charged amount less completed refunds.
func (l *RefundLedger) GetMaximumRefundAmount(ctx context.Context, paymentID uuid.UUID) (money.Money, error) {
	payment, err := l.store.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return money.Money{}, apperr.NotFound(apperr.CodePaymentNotFound, "payment not found")
		}
		return money.Money{}, fmt.Errorf("get payment: %w", err)
	}
	totals, err := l.store.GetRefundTotals(ctx, paymentID)
	if err != nil {
		return money.Money{}, fmt.Errorf("sum refunds: %w", err)
	}
	return money.New(max(payment.Amount.Minor-totals.Completed, 0), payment.Amount.Currency), nil
}

// GetRefund returns a single refund.
func (l *RefundLedger) GetRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	r, err := l.store.GetRefund(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeRefundNotFound, "refund not found")
		}
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return r, nil
}

// ListRefunds returns a payment's refunds.
func (l *RefundLedger) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	if _, err := l.store.GetPayment(ctx, paymentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment not found")
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return l.store.ListRefunds(ctx, paymentID)
}

// complete settles a refund and recomputes the payment's refund state.
// resolvedBy is set when an operator settles a refund by hand.
func (l *RefundLedger) complete(ctx context.Context, refundID uuid.UUID, gatewayRef string, manual bool, resolvedBy *uuid.UUID) (*model.Refund, error) {
	encRef, err := l.vault.Encrypt(gatewayRef)
	if err != nil {
		return nil, fmt.Errorf("encrypt refund reference: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	var refund *model.Refund
	var payment *model.Payment
	err = l.store.InLedgerTx(ctx, func(tx repository.LedgerTx) error {
		r, err := tx.LockRefund(ctx, refundID)
		if err != nil {
			return err
		}
		p, err := tx.LockPayment(ctx, r.PaymentID)
		if err != nil {
			return err
		}
		if r.Status == model.RefundCompleted {
			refund, payment = r, nil
			return nil
		}
		if r.Status != model.RefundPending {
			return apperr.Validation(apperr.CodeInvalidStatusTransition, "refund is %s; only pending refunds can be completed", r.Status)
		}

		now := time.Now().UTC()
		r.Status = model.RefundCompleted
		r.EncryptedGatewayRef = encRef
		r.ProcessedAt = &now
		if manual {
			r.Metadata = withMetadata(r.Metadata, "manual", true)
		}
		actor := &r.ProcessedBy
		if resolvedBy != nil {
			actor = resolvedBy
			r.Metadata = withMetadata(r.Metadata, "resolved_by", resolvedBy.String())
		}
		if err := tx.UpdateRefund(ctx, r); err != nil {
			return err
		}

		totals, err := tx.RefundTotals(ctx, p.ID)
		if err != nil {
			return err
		}
		before := map[string]any{"status": string(p.Status), "refunded_amount": p.RefundedAmount.String()}
		p.RefundedAmount = money.New(totals.Completed, p.Amount.Currency)
		if totals.Completed >= p.Amount.Minor {
			p.Status = model.PaymentRefunded
		} else {
			p.Status = model.PaymentPartiallyRefunded
		}
		p.RefundedAt = &now
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}

		description := fmt.Sprintf("Refund of %s completed", r.Amount.Display())
		if manual {
			description += " (manual)"
		}
		if err := tx.AppendAudit(ctx, newAudit(p.ID, model.AuditRefundCompleted, actor, description, before,
			map[string]any{"status": string(p.Status), "refunded_amount": p.RefundedAmount.String(), "refund_id": r.ID.String()})); err != nil {
			return err
		}
		refund, payment = r, p
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("record refund completion: %w", err)
	}

	if payment != nil {
		l.logger.Info("refund completed", "refund_id", refund.ID, "payment_id", payment.ID,
			"amount", refund.Amount.String(), "payment_status", payment.Status)
		l.notifier.notify(ctx, RoutingRefundCompleted, refundEvent(refund))
	}
	return refund, nil
}

// fail marks a refund failed, releasing its reservation. The payment is unchanged.
// Failing an already failed refund is a no-op.
func (l *RefundLedger) fail(ctx context.Context, refundID uuid.UUID, reason string, resolvedBy *uuid.UUID) (*model.Refund, error) {
	ctx = context.WithoutCancel(ctx)
	var refund *model.Refund
	changed := false
	err := l.store.InLedgerTx(ctx, func(tx repository.LedgerTx) error {
		r, err := tx.LockRefund(ctx, refundID)
		if err != nil {
			return err
		}
		switch r.Status {
		case model.RefundFailed:
			refund = r
			return nil
		case model.RefundCompleted:
			return apperr.Validation(apperr.CodeInvalidStatusTransition, "refund is completed; a completed refund cannot be failed")
		}
		now := time.Now().UTC()
		r.Status = model.RefundFailed
		r.ProcessedAt = &now
		r.Metadata = withMetadata(r.Metadata, "failure_reason", reason)
		actor := &r.ProcessedBy
		if resolvedBy != nil {
			actor = resolvedBy
			r.Metadata = withMetadata(r.Metadata, "resolved_by", resolvedBy.String())
		}
		if err := tx.UpdateRefund(ctx, r); err != nil {
			return err
		}
		refund, changed = r, true
		return tx.AppendAudit(ctx, newAudit(r.PaymentID, model.AuditRefundFailed, actor,
			fmt.Sprintf("Refund of %s failed: %s", r.Amount.Display(), reason),
			map[string]any{"refund_status": string(model.RefundPending)},
			map[string]any{"refund_status": string(model.RefundFailed), "refund_id": r.ID.String(), "failure_reason": reason}))
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("record refund failure: %w", err)
	}
	if !changed {
		return refund, nil
	}

	l.logger.Warn("refund failed", "refund_id", refund.ID, "payment_id", refund.PaymentID, "reason", reason)
	l.notifier.notify(ctx, RoutingRefundFailed, refundEvent(refund))
	return refund, nil
}

// markForReconciliation leaves the refund pending, still holding its reservation.
func (l *RefundLedger) markForReconciliation(ctx context.Context, refund *model.Refund, cause error) {
	l.logger.Warn("payment processor refund outcome unknown", "refund_id", refund.ID, "payment_id", refund.PaymentID, "error", cause)
	ctx = context.WithoutCancel(ctx)
	err := l.store.InLedgerTx(ctx, func(tx repository.LedgerTx) error {
		return tx.AppendAudit(ctx, newAudit(refund.PaymentID, model.AuditReconciliationRequired, &refund.ProcessedBy,
			fmt.Sprintf("Payment processor refund outcome unknown: %v", cause), nil,
			map[string]any{"refund_id": refund.ID.String()}))
	})
	if err != nil {
		l.logger.Error("failed to record reconciliation marker", "refund_id", refund.ID, "error", err)
	}
}

func notEligible(p *model.Payment) error {
	return apperr.Validation(apperr.CodeNotEligibleForRefund,
		"payment is %s; only completed or partially refunded payments can be refunded", p.Status)
}

// withMetadata returns a copy of m with key set, leaving m untouched.
func withMetadata(m map[string]any, key string, value any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[key] = value
	return out
}
