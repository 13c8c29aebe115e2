package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/gateway"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
)

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked    int `json:"checked"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Unresolved int `json:"unresolved"`
	Skipped    int `json:"skipped"`
}

// Reconciler settles payments left pending by unanswered processor calls.
type Reconciler struct {
	ledger     *PaymentLedger
	staleAfter time.Duration
	batch      int
}

// NewReconciler constructs a Reconciler. Payments younger than staleAfter are
// left alone; at most batch payments are examined per pass.
func NewReconciler(ledger *PaymentLedger, staleAfter time.Duration, batch int) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{ledger: ledger, staleAfter: staleAfter, batch: batch}
}

// ReconcilePendingPayments asks the processor about each stale pending
// payment and applies what it reports.
func (r *Reconciler) ReconcilePendingPayments(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	l := r.ledger

	stale, err := l.store.ListStalePayments(ctx, time.Now().UTC().Add(-r.staleAfter), r.batch)
	if err != nil {
		return report, fmt.Errorf("list stale payments: %w", err)
	}

	for i := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p := &stale[i]
		report.Checked++

		if p.EncryptedOrderRef == "" {
			// The order call never answered; only an operator can settle this.
			l.logger.Warn("pending payment has no processor order", "payment_id", p.ID)
			report.Unresolved++
			continue
		}
		orderID, err := l.vault.Decrypt(p.EncryptedOrderRef)
		if err != nil {
			l.logger.Error("order reference unreadable", "payment_id", p.ID, "error", err)
			report.Unresolved++
			continue
		}

		gctx, cancel := context.WithTimeout(ctx, l.timeout)
		res, err := l.gateway.GetOrder(gctx, orderID)
		cancel()
		if err != nil {
			l.logger.Warn("order lookup failed", "payment_id", p.ID, "error", err)
			report.Unresolved++
			continue
		}

		var changed bool
		switch {
		case !res.OK():
			_, changed, err = l.transition(ctx, p.ID, model.PaymentFailed, nil, nil,
				&failure{code: FailureOrderMissing, message: res.Failure})
			if changed {
				report.Failed++
			}
		case res.Value.Status == gateway.OrderCompleted:
			captureID := res.Value.CaptureID
			_, changed, err = l.transition(ctx, p.ID, model.PaymentCompleted, &captureID, nil, nil)
			if changed {
				report.Completed++
			}
		case res.Value.Status == gateway.OrderVoided:
			_, changed, err = l.transition(ctx, p.ID, model.PaymentFailed, nil, nil,
				&failure{code: FailureOrderVoided, message: "order voided by payment processor"})
			if changed {
				report.Failed++
			}
		default:
			report.Skipped++
			continue
		}
		if err != nil {
			l.logger.Error("reconciliation update failed", "payment_id", p.ID, "error", err)
			report.Unresolved++
			continue
		}
		if !changed {
			report.Skipped++
		}
	}

	l.logger.Info("reconciliation pass finished",
		"checked", report.Checked, "completed", report.Completed, "failed", report.Failed,
		"unresolved", report.Unresolved, "skipped", report.Skipped)
	return report, nil
}
