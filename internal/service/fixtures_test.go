package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/gateway"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/vault"
)

var errGatewayTimeout = errors.New("gateway timeout")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway scripts processor answers and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	createErr     error
	createFailure string
	captureErr    error
	captureResult gateway.Result[gateway.Capture]
	orders        map[string]gateway.Result[gateway.Order]
	orderErr      error
	refundErr     error
	refundFailure string
	validSig      string

	createCalls  int
	captureCalls int
	refundCalls  int
	refunds      []gateway.RefundRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		captureResult: gateway.Success(gateway.Capture{ID: "CAP-1", Status: gateway.CaptureCompleted}),
		orders:        make(map[string]gateway.Result[gateway.Order]),
		validSig:      "good",
	}
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (gateway.Result[gateway.Order], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return gateway.Result[gateway.Order]{}, g.createErr
	}
	if g.createFailure != "" {
		return gateway.Failed[gateway.Order](g.createFailure), nil
	}
	id := fmt.Sprintf("ORDER-%s", req.PaymentID)
	return gateway.Success(gateway.Order{ID: id, Status: gateway.OrderCreated}), nil
}

func (g *fakeGateway) CaptureOrder(_ context.Context, _ string) (gateway.Result[gateway.Capture], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if g.captureErr != nil {
		return gateway.Result[gateway.Capture]{}, g.captureErr
	}
	return g.captureResult, nil
}

func (g *fakeGateway) GetOrder(_ context.Context, orderID string) (gateway.Result[gateway.Order], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orderErr != nil {
		return gateway.Result[gateway.Order]{}, g.orderErr
	}
	if res, ok := g.orders[orderID]; ok {
		return res, nil
	}
	return gateway.Success(gateway.Order{ID: orderID, Status: gateway.OrderCreated}), nil
}

func (g *fakeGateway) RefundCapture(_ context.Context, req gateway.RefundRequest) (gateway.Result[gateway.RefundReceipt], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return gateway.Result[gateway.RefundReceipt]{}, g.refundErr
	}
	if g.refundFailure != "" {
		return gateway.Failed[gateway.RefundReceipt](g.refundFailure), nil
	}
	return gateway.Success(gateway.RefundReceipt{ID: "REF-" + req.IdempotencyKey, Status: gateway.RefundCompleted}), nil
}

func (g *fakeGateway) ValidateWebhookSignature(_ []byte, signature string) bool {
	return signature == g.validSig
}

func (g *fakeGateway) calls() (create, capture, refund int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.captureCalls, g.refundCalls
}

// recordingPublisher keeps every published routing key.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, _, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type harness struct {
	store     *repository.MemoryStore
	gateway   *fakeGateway
	publisher *recordingPublisher
	vault     *vault.Vault
	admission *AdmissionService
	payments  *PaymentLedger
	refunds   *RefundLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	gw := newFakeGateway()
	pub := &recordingPublisher{}
	v, err := vault.New("test-secret-0123456789")
	require.NoError(t, err)

	logger := discardLogger()
	notifier := NewNotifier(pub, "admission.events", logger)
	cfg := LedgerConfig{GatewayTimeout: time.Second}
	return &harness{
		store:     store,
		gateway:   gw,
		publisher: pub,
		vault:     v,
		admission: NewAdmissionService(store, notifier, logger, 3),
		payments:  NewPaymentLedger(store, gw, v, notifier, logger, cfg),
		refunds:   NewRefundLedger(store, gw, v, notifier, logger, cfg),
	}
}

func (h *harness) event(t *testing.T, capacity int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := h.admission.SyncEvent(context.Background(), id, model.SyncEventRequest{Name: "Spring Gala", Capacity: capacity})
	require.NoError(t, err)
	return id
}

func (h *harness) confirmed(t *testing.T) *model.Registration {
	t.Helper()
	reg, err := h.admission.Register(context.Background(), h.event(t, 10), uuid.New())
	require.NoError(t, err)
	require.Equal(t, model.RegistrationConfirmed, reg.Status)
	return reg
}

// completedPayment charges a fresh confirmed registration and captures it.
func (h *harness) completedPayment(t *testing.T, base string) *model.Payment {
	t.Helper()
	ctx := context.Background()
	reg := h.confirmed(t)
	p, err := h.payments.ProcessPayment(ctx, ProcessPayment{
		RegistrationID: reg.ID,
		UserID:         reg.RegistrantID,
		BaseAmount:     mustUSD(base),
	})
	require.NoError(t, err)
	p, err = h.payments.CapturePayment(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Equal(t, model.PaymentCompleted, p.Status)
	return p
}

func auditActions(t *testing.T, store repository.Store, paymentID uuid.UUID) []model.AuditAction {
	t.Helper()
	entries, err := store.ListAudit(context.Background(), paymentID)
	require.NoError(t, err)
	actions := make([]model.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}
