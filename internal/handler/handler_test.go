package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/gateway"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/vault"
)

const (
	testSecret = "handler-test-secret"
	testIssuer = "admission-tests"
)

// okGateway accepts every request.
type okGateway struct{}

func (okGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (gateway.Result[gateway.Order], error) {
	return gateway.Success(gateway.Order{ID: "ORDER-" + req.PaymentID.String(), Status: gateway.OrderCreated}), nil
}

func (okGateway) CaptureOrder(_ context.Context, _ string) (gateway.Result[gateway.Capture], error) {
	return gateway.Success(gateway.Capture{ID: "CAP-1", Status: gateway.CaptureCompleted}), nil
}

func (okGateway) GetOrder(_ context.Context, orderID string) (gateway.Result[gateway.Order], error) {
	return gateway.Success(gateway.Order{ID: orderID, Status: gateway.OrderApproved}), nil
}

func (okGateway) RefundCapture(_ context.Context, req gateway.RefundRequest) (gateway.Result[gateway.RefundReceipt], error) {
	return gateway.Success(gateway.RefundReceipt{ID: "REF-" + req.IdempotencyKey, Status: gateway.RefundCompleted}), nil
}

func (okGateway) ValidateWebhookSignature(_ []byte, signature string) bool {
	return signature == "sig-ok"
}

type fixedLimiter struct {
	count int
	err   error
}

func (l fixedLimiter) ConsumeRateLimit(context.Context, string, string, int, time.Duration) (int, int, error) {
	return l.count, 42, l.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testAPI struct {
	router http.Handler
	h      *Handler
}

func newTestAPI(t *testing.T, limiter RateLimiter) *testAPI {
	t.Helper()
	store := repository.NewMemoryStore()
	v, err := vault.New("handler-vault-secret-0123")
	require.NoError(t, err)
	logger := discardLogger()
	notifier := service.NewNotifier(nil, "", logger)
	cfg := service.LedgerConfig{GatewayTimeout: time.Second}

	h := NewHandler(
		service.NewAdmissionService(store, notifier, logger, 3),
		service.NewPaymentLedger(store, okGateway{}, v, notifier, logger, cfg),
		service.NewRefundLedger(store, okGateway{}, v, notifier, logger, cfg),
		money.USD,
		logger,
	)
	router := NewRouter(h, RouterConfig{
		JWTSecret:         testSecret,
		JWTIssuer:         testIssuer,
		CORSOrigins:       []string{"*"},
		Limiter:           limiter,
		RegisterPerMinute: 5,
	}, logger)
	return &testAPI{router: router, h: h}
}

func token(t *testing.T, sub uuid.UUID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  sub.String(),
		"iss":  testIssuer,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) syncEvent(t *testing.T, capacity int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	rec := a.do(t, http.MethodPut, "/events/"+id.String(), token(t, uuid.New(), RoleAdmin),
		model.SyncEventRequest{Name: "Community dinner", Capacity: capacity})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSyncEventRequiresAdmin(t *testing.T) {
	api := newTestAPI(t, nil)
	path := "/events/" + uuid.NewString()
	body := model.SyncEventRequest{Name: "Dinner", Capacity: 10}

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPut, path, "", body).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, path, token(t, uuid.New(), "member"), body).Code)

	rec := api.do(t, http.MethodPut, path, token(t, uuid.New(), RoleAdmin), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	event := decode[model.Event](t, rec)
	assert.Equal(t, 10, event.Capacity)
}

func TestSyncEventValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodPut, "/events/"+uuid.NewString(), token(t, uuid.New(), RoleAdmin),
		model.SyncEventRequest{Name: "Dinner", Capacity: 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeInvalidRequest, decode[model.ErrorResponse](t, rec).Code)
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	api := newTestAPI(t, nil)
	eventID := api.syncEvent(t, 5)
	path := "/events/" + eventID.String() + "/register"

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(), "iss": testIssuer,
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(), "iss": "elsewhere",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	notUUID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "member-7", "iss": testIssuer,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, bearer := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"non-uuid sub": notUUID,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPost, path, bearer, nil).Code)
		})
	}
}

func TestRegisterWaitlistAndCancel(t *testing.T) {
	api := newTestAPI(t, nil)
	eventID := api.syncEvent(t, 1)
	alice, bob := uuid.New(), uuid.New()
	path := "/events/" + eventID.String()

	rec := api.do(t, http.MethodPost, path+"/register", token(t, alice, "member"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[model.Registration](t, rec)
	assert.Equal(t, model.RegistrationConfirmed, first.Status)
	assert.Equal(t, alice, first.RegistrantID)

	rec = api.do(t, http.MethodPost, path+"/register", token(t, bob, "member"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[model.Registration](t, rec)
	assert.Equal(t, model.RegistrationWaitlisted, second.Status)
	require.NotNil(t, second.WaitlistPosition)
	assert.Equal(t, 1, *second.WaitlistPosition)

	rec = api.do(t, http.MethodPost, path+"/register", token(t, alice, "member"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	occ := decode[model.Occupancy](t, api.do(t, http.MethodGet, path+"/occupancy", "", nil))
	assert.Equal(t, model.Occupancy{EventID: eventID, Capacity: 1, Confirmed: 1, Waitlisted: 1, Remaining: 0}, occ)

	waitlist := decode[[]model.Registration](t, api.do(t, http.MethodGet, path+"/waitlist", "", nil))
	require.Len(t, waitlist, 1)
	assert.Equal(t, second.ID, waitlist[0].ID)

	// Bob may not cancel Alice's seat.
	cancelPath := "/registrations/" + first.ID.String() + "/cancel"
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, cancelPath, token(t, bob, "member"), nil).Code)

	rec = api.do(t, http.MethodPost, cancelPath, token(t, alice, "member"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.RegistrationCancelled, decode[model.Registration](t, rec).Status)

	promoted := decode[model.Registration](t, api.do(t, http.MethodGet, "/registrations/"+second.ID.String(), "", nil))
	assert.Equal(t, model.RegistrationConfirmed, promoted.Status)
	assert.Nil(t, promoted.WaitlistPosition)
}

func TestRegisterUnknownEvent(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodPost, "/events/"+uuid.NewString()+"/register", token(t, uuid.New(), "member"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeEventNotFound, decode[model.ErrorResponse](t, rec).Code)
}

func TestEmptyListsAreArrays(t *testing.T) {
	api := newTestAPI(t, nil)
	eventID := api.syncEvent(t, 3)
	rec := api.do(t, http.MethodGet, "/events/"+eventID.String()+"/registrations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestInvalidPathID(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/registrations/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentAndRefundFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	eventID := api.syncEvent(t, 5)
	member := uuid.New()
	memberToken := token(t, member, "member")
	adminToken := token(t, uuid.New(), RoleAdmin)

	reg := decode[model.Registration](t, api.do(t, http.MethodPost, "/events/"+eventID.String()+"/register", memberToken, nil))
	payPath := "/registrations/" + reg.ID.String() + "/payments"

	// ── Charge ──
	rec := api.do(t, http.MethodPost, payPath, memberToken, model.ProcessPaymentRequest{
		BaseAmount: "100.00", SlidingScalePercentage: "25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decode[model.Payment](t, rec)
	assert.Equal(t, money.MustParse("75.00", money.USD), payment.Amount)
	assert.Equal(t, model.PaymentPending, payment.Status)

	rec = api.do(t, http.MethodPost, payPath, memberToken, model.ProcessPaymentRequest{BaseAmount: "100.00"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodePaymentInProgress, decode[model.ErrorResponse](t, rec).Code)

	// ── Capture ──
	paymentPath := "/payments/" + payment.ID.String()
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, paymentPath+"/capture", token(t, uuid.New(), "member"), nil).Code)
	rec = api.do(t, http.MethodPost, paymentPath+"/capture", memberToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.PaymentCompleted, decode[model.Payment](t, rec).Status)

	byReg := decode[model.Payment](t, api.do(t, http.MethodGet, "/registrations/"+reg.ID.String()+"/payment", "", nil))
	assert.Equal(t, payment.ID, byReg.ID)

	// ── Refund ──
	refundBody := model.ProcessRefundRequest{Amount: "50", Reason: "member could not attend", Metadata: map[string]any{"ticket": "T-1"}}
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, paymentPath+"/refunds", memberToken, refundBody).Code)

	rec = api.do(t, http.MethodPost, paymentPath+"/refunds", adminToken, refundBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	refund := decode[model.Refund](t, rec)
	assert.Equal(t, model.RefundCompleted, refund.Status)
	assert.Equal(t, money.MustParse("50.00", money.USD), refund.Amount)

	maximum := decode[map[string]any](t, api.do(t, http.MethodGet, paymentPath+"/refunds/maximum", adminToken, nil))
	assert.Equal(t, "$25.00", maximum["display"])

	rec = api.do(t, http.MethodPost, paymentPath+"/refunds", adminToken, model.ProcessRefundRequest{Amount: "30", Reason: "member could not attend"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[model.ErrorResponse](t, rec)
	assert.Equal(t, apperr.CodeRefundExceedsAvailable, errResp.Code)
	assert.Contains(t, errResp.Error, "25.00")

	refunds := decode[[]model.Refund](t, api.do(t, http.MethodGet, paymentPath+"/refunds", adminToken, nil))
	require.Len(t, refunds, 1)

	got := decode[model.Refund](t, api.do(t, http.MethodGet, "/refunds/"+refund.ID.String(), adminToken, nil))
	assert.Equal(t, refund.ID, got.ID)

	audit := decode[[]model.AuditLogEntry](t, api.do(t, http.MethodGet, paymentPath+"/audit", adminToken, nil))
	actions := make([]model.AuditAction, 0, len(audit))
	for _, e := range audit {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, model.AuditRefundCompleted)
	assert.Equal(t, model.AuditPaymentInitiated, actions[0])

	current := decode[model.Payment](t, api.do(t, http.MethodGet, paymentPath, "", nil))
	assert.Equal(t, model.PaymentPartiallyRefunded, current.Status)
}

func TestProcessPaymentRejectsBadInput(t *testing.T) {
	api := newTestAPI(t, nil)
	eventID := api.syncEvent(t, 5)
	member := uuid.New()
	memberToken := token(t, member, "member")
	reg := decode[model.Registration](t, api.do(t, http.MethodPost, "/events/"+eventID.String()+"/register", memberToken, nil))
	payPath := "/registrations/" + reg.ID.String() + "/payments"

	cases := []struct {
		name string
		body any
		code string
	}{
		{"missing amount", model.ProcessPaymentRequest{}, apperr.CodeInvalidRequest},
		{"too many decimals", model.ProcessPaymentRequest{BaseAmount: "10.505"}, apperr.CodeInvalidAmount},
		{"discount above limit", model.ProcessPaymentRequest{BaseAmount: "100", SlidingScalePercentage: "80"}, apperr.CodeSlidingScaleOutOfRange},
		{"negative discount", model.ProcessPaymentRequest{BaseAmount: "100", SlidingScalePercentage: "-0.50"}, apperr.CodeSlidingScaleOutOfRange},
		{"amount above maximum", model.ProcessPaymentRequest{BaseAmount: "200000000000000000"}, apperr.CodeInvalidAmount},
		{"unsupported currency", model.ProcessPaymentRequest{BaseAmount: "100", Currency: "JPY"}, apperr.CodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, payPath, memberToken, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode[model.ErrorResponse](t, rec).Code)
		})
	}

	rec := api.do(t, http.MethodPost, payPath, memberToken, map[string]any{"base_amount": "10", "tip": "5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePaymentStatusAsAdmin(t *testing.T) {
	api := newTestAPI(t, nil)
	eventID := api.syncEvent(t, 5)
	member := uuid.New()
	memberToken := token(t, member, "member")
	reg := decode[model.Registration](t, api.do(t, http.MethodPost, "/events/"+eventID.String()+"/register", memberToken, nil))
	payment := decode[model.Payment](t, api.do(t, http.MethodPost, "/registrations/"+reg.ID.String()+"/payments", memberToken,
		model.ProcessPaymentRequest{BaseAmount: "40"}))

	path := "/payments/" + payment.ID.String() + "/status"
	body := model.UpdatePaymentStatusRequest{Status: model.PaymentFailed}
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, path, memberToken, body).Code)

	rec := api.do(t, http.MethodPut, path, token(t, uuid.New(), RoleAdmin), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.PaymentFailed, decode[model.Payment](t, rec).Status)

	rec = api.do(t, http.MethodPut, path, token(t, uuid.New(), RoleAdmin), model.UpdatePaymentStatusRequest{Status: "refunded"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveRefundRoute(t *testing.T) {
	api := newTestAPI(t, nil)
	eventID := api.syncEvent(t, 5)
	member := uuid.New()
	memberToken := token(t, member, "member")
	adminToken := token(t, uuid.New(), RoleAdmin)
	reg := decode[model.Registration](t, api.do(t, http.MethodPost, "/events/"+eventID.String()+"/register", memberToken, nil))
	payment := decode[model.Payment](t, api.do(t, http.MethodPost, "/registrations/"+reg.ID.String()+"/payments", memberToken,
		model.ProcessPaymentRequest{BaseAmount: "40"}))
	paymentPath := "/payments/" + payment.ID.String()
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, paymentPath+"/capture", memberToken, nil).Code)
	refund := decode[model.Refund](t, api.do(t, http.MethodPost, paymentPath+"/refunds", adminToken,
		model.ProcessRefundRequest{Amount: "10", Reason: "member could not attend"}))

	path := "/refunds/" + refund.ID.String() + "/status"
	failed := model.ResolveRefundRequest{Status: model.RefundFailed, Reason: "processor dashboard shows no refund"}
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPut, path, "", failed).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPut, path, memberToken, failed).Code)

	rec := api.do(t, http.MethodPut, path, adminToken, failed)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, apperr.CodeInvalidStatusTransition, decode[model.ErrorResponse](t, rec).Code)

	rec = api.do(t, http.MethodPut, path, adminToken, model.ResolveRefundRequest{Status: model.RefundPending})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, path, adminToken, model.ResolveRefundRequest{Status: model.RefundCompleted})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RefundCompleted, decode[model.Refund](t, rec).Status)

	rec = api.do(t, http.MethodPut, "/refunds/"+uuid.NewString()+"/status", adminToken, failed)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayWebhookSignature(t *testing.T) {
	api := newTestAPI(t, nil)
	payload := []byte(`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(payload))
	req.Header.Set(WebhookSignatureHeader, "forged")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(payload))
	req.Header.Set(WebhookSignatureHeader, "sig-ok")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterRateLimited(t *testing.T) {
	api := newTestAPI(t, fixedLimiter{count: 6})
	eventID := api.syncEvent(t, 5)

	rec := api.do(t, http.MethodPost, "/events/"+eventID.String()+"/register", token(t, uuid.New(), "member"), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestRateLimiterFailsOpen(t *testing.T) {
	api := newTestAPI(t, fixedLimiter{err: errors.New("redis down")})
	eventID := api.syncEvent(t, 5)

	rec := api.do(t, http.MethodPost, "/events/"+eventID.String()+"/register", token(t, uuid.New(), "member"), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWriteAppErrorStatuses(t *testing.T) {
	h := &Handler{logger: discardLogger()}
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperr.Validation(apperr.CodeInvalidAmount, "bad"), http.StatusBadRequest},
		{"conflict", apperr.Conflict(apperr.CodeAlreadyRegistered, "dup"), http.StatusConflict},
		{"not found", apperr.NotFound(apperr.CodePaymentNotFound, "missing"), http.StatusNotFound},
		{"transient", apperr.Transient(apperr.CodeAdmissionRetriesExhausted, errors.New("serialization"), "busy"), http.StatusServiceUnavailable},
		{"external", apperr.External(apperr.CodeGatewayCaptureFailed, "INSTRUMENT_DECLINED", nil, "declined"), http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.writeAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		apperr.External(apperr.CodeGatewayCaptureFailed, "INSTRUMENT_DECLINED", nil, "declined"))
	assert.Equal(t, "INSTRUMENT_DECLINED", decode[model.ErrorResponse](t, rec).ProcessorMessage)

	rec = httptest.NewRecorder()
	h.writeAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: secret detail"))
	assert.Equal(t, "internal server error", decode[model.ErrorResponse](t, rec).Error)
}
