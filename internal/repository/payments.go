package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
)

const paymentColumns = `id, registration_id, user_id, currency, amount_minor, original_amount_minor,
	sliding_scale_hundredths, status, method, encrypted_order_ref, encrypted_capture_ref,
	refunded_minor, processed_at, refunded_at, created_at, updated_at`

const refundColumns = `id, payment_id, currency, amount_minor, status, reason, encrypted_gateway_ref,
	processed_by, metadata, created_at, processed_at`

const auditColumns = `id, payment_id, action, description, old_values, new_values, actor_id, created_at`

func scanPayment(row rowScanner) (*model.Payment, error) {
	var (
		p                          model.Payment
		currency                   money.Currency
		amount, original, refunded int64
	)
	err := row.Scan(&p.ID, &p.RegistrationID, &p.UserID, &currency, &amount, &original,
		&p.SlidingScale, &p.Status, &p.Method, &p.EncryptedOrderRef, &p.EncryptedCaptureRef,
		&refunded, &p.ProcessedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Amount = money.New(amount, currency)
	p.OriginalAmount = money.New(original, currency)
	p.RefundedAmount = money.New(refunded, currency)
	return &p, nil
}

func scanRefund(row rowScanner) (*model.Refund, error) {
	var (
		r        model.Refund
		currency money.Currency
		amount   int64
	)
	err := row.Scan(&r.ID, &r.PaymentID, &currency, &amount, &r.Status, &r.Reason,
		&r.EncryptedGatewayRef, &r.ProcessedBy, &r.Metadata, &r.CreatedAt, &r.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}
	r.Amount = money.New(amount, currency)
	return &r, nil
}

func scanAudit(row rowScanner) (*model.AuditLogEntry, error) {
	var e model.AuditLogEntry
	if err := row.Scan(&e.ID, &e.PaymentID, &e.Action, &e.Description, &e.OldValues, &e.NewValues, &e.ActorID, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	return &e, nil
}

func refundTotals(ctx context.Context, q querier, paymentID uuid.UUID) (RefundTotals, error) {
	var t RefundTotals
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_minor) FILTER (WHERE status = 'completed'), 0),
		        COALESCE(SUM(amount_minor) FILTER (WHERE status = 'pending'), 0)
		 FROM refunds
		 WHERE payment_id = $1`,
		paymentID,
	).Scan(&t.Completed, &t.Pending)
	if err != nil {
		return RefundTotals{}, mapPgError(fmt.Errorf("sum refunds: %w", err))
	}
	return t, nil
}

// ─── Ledger reads ─────────────────────────────────────────────────────────────

// GetPayment returns a single payment or ErrNotFound.
func (s *PostgresStore) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return scanPayment(s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetLivePayment returns the registration's non-failed payment or ErrNotFound.
func (s *PostgresStore) GetLivePayment(ctx context.Context, registrationID uuid.UUID) (*model.Payment, error) {
	return scanPayment(s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE registration_id = $1 AND status <> 'failed'`,
		registrationID,
	))
}

// ListStalePayments returns pending payments created before the cutoff, oldest first.
func (s *PostgresStore) ListStalePayments(ctx context.Context, createdBefore time.Time, limit int) ([]model.Payment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		createdBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// ListPaymentFailures returns the processor failures recorded for a payment.
func (s *PostgresStore) ListPaymentFailures(ctx context.Context, paymentID uuid.UUID) ([]model.PaymentFailure, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, payment_id, failure_code, failure_message, failed_at
		 FROM payment_failures
		 WHERE payment_id = $1
		 ORDER BY failed_at ASC`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment failures: %w", err)
	}
	defer rows.Close()

	var failures []model.PaymentFailure
	for rows.Next() {
		var f model.PaymentFailure
		if err := rows.Scan(&f.ID, &f.PaymentID, &f.FailureCode, &f.FailureMessage, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("scan payment failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// GetRefundTotals sums completed and pending refunds outside any transaction.
func (s *PostgresStore) GetRefundTotals(ctx context.Context, paymentID uuid.UUID) (RefundTotals, error) {
	return refundTotals(ctx, s.db, paymentID)
}

// GetRefund returns a single refund or ErrNotFound.
func (s *PostgresStore) GetRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	return scanRefund(s.db.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id))
}

// ListRefunds returns a payment's refunds in creation order.
func (s *PostgresStore) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []model.Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *r)
	}
	return refunds, rows.Err()
}

// ListAudit returns a payment's audit trail in the order it was written.
func (s *PostgresStore) ListAudit(ctx context.Context, paymentID uuid.UUID) ([]model.AuditLogEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+auditColumns+` FROM payment_audit_log WHERE payment_id = $1 ORDER BY created_at ASC, id ASC`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ─── Ledger transaction ───────────────────────────────────────────────────────

type pgLedgerTx struct {
	q querier
}

func (t *pgLedgerTx) LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p, err := scanPayment(t.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, mapPgError(err)
	}
	return p, err
}

func (t *pgLedgerTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.RegistrationID, p.UserID, p.Amount.Currency, p.Amount.Minor, p.OriginalAmount.Minor,
		p.SlidingScale, p.Status, p.Method, p.EncryptedOrderRef, p.EncryptedCaptureRef,
		p.RefundedAmount.Minor, p.ProcessedAt, p.RefundedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("insert payment: %w", err))
	}
	return nil
}

func (t *pgLedgerTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE payments
		 SET status = $2, encrypted_order_ref = $3, encrypted_capture_ref = $4, refunded_minor = $5,
		     processed_at = $6, refunded_at = $7, updated_at = $8
		 WHERE id = $1`,
		p.ID, p.Status, p.EncryptedOrderRef, p.EncryptedCaptureRef, p.RefundedAmount.Minor,
		p.ProcessedAt, p.RefundedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("update payment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgLedgerTx) InsertPaymentFailure(ctx context.Context, f *model.PaymentFailure) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO payment_failures (id, payment_id, failure_code, failure_message, failed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.PaymentID, f.FailureCode, f.FailureMessage, f.FailedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("insert payment failure: %w", err))
	}
	return nil
}

func (t *pgLedgerTx) RefundTotals(ctx context.Context, paymentID uuid.UUID) (RefundTotals, error) {
	return refundTotals(ctx, t.q, paymentID)
}

func (t *pgLedgerTx) InsertRefund(ctx context.Context, r *model.Refund) error {
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := t.q.Exec(ctx,
		`INSERT INTO refunds (`+refundColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.PaymentID, r.Amount.Currency, r.Amount.Minor, r.Status, r.Reason,
		r.EncryptedGatewayRef, r.ProcessedBy, metadata, r.CreatedAt, r.ProcessedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("insert refund: %w", err))
	}
	return nil
}

func (t *pgLedgerTx) LockRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	r, err := scanRefund(t.q.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1 FOR UPDATE`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, mapPgError(err)
	}
	return r, err
}

func (t *pgLedgerTx) UpdateRefund(ctx context.Context, r *model.Refund) error {
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	// Completed refunds are final.
	tag, err := t.q.Exec(ctx,
		`UPDATE refunds
		 SET status = $2, encrypted_gateway_ref = $3, metadata = $4, processed_at = $5
		 WHERE id = $1 AND status <> 'completed'`,
		r.ID, r.Status, r.EncryptedGatewayRef, metadata, r.ProcessedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("update refund: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgLedgerTx) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO payment_audit_log (`+auditColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.PaymentID, e.Action, e.Description, e.OldValues, e.NewValues, e.ActorID, e.CreatedAt,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("append audit entry: %w", err))
	}
	return nil
}
