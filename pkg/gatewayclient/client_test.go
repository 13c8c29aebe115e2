package gatewayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/gateway"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
)

func TestCreateOrderSendsPaymentIDAndAmount(t *testing.T) {
	paymentID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/checkout/orders", r.URL.Path)
		assert.Equal(t, paymentID.String(), r.Header.Get("PayPal-Request-Id"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)

		var body CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.PurchaseUnits, 1)
		assert.Equal(t, "CAPTURE", body.Intent)
		assert.Equal(t, paymentID.String(), body.PurchaseUnits[0].CustomID)
		assert.Equal(t, "75.00", body.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "USD", body.PurchaseUnits[0].Amount.CurrencyCode)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "client", "secret", "whsec", time.Second)
	res, err := client.CreateOrder(context.Background(), gateway.OrderRequest{
		PaymentID: paymentID,
		Amount:    money.New(7500, money.USD),
	})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "ORDER-1", res.Value.ID)
}

func TestClientErrorIsDefinitiveFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED","description":"The instrument presented was declined."}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "c", "s", "", time.Second)
	res, err := client.CreateOrder(context.Background(), gateway.OrderRequest{PaymentID: uuid.New(), Amount: money.New(100, money.USD)})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "The instrument presented was declined.", res.Failure)
}

func TestServerErrorIsUnknownOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "c", "s", "", time.Second)
	res, err := client.RefundCapture(context.Background(), gateway.RefundRequest{CaptureID: "CAP-1", Amount: money.New(100, money.USD)})
	require.Error(t, err)
	assert.False(t, res.OK())
	assert.Empty(t, res.Failure)
}

func TestTimeoutIsUnknownOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, "c", "s", "", 20*time.Millisecond)
	_, err := client.GetOrder(context.Background(), "ORDER-1")
	assert.Error(t, err)
}

func TestGetOrderReportsCapture(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/checkout/orders/ORDER-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"ORDER-9","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-9","status":"COMPLETED"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "c", "s", "", time.Second)
	res, err := client.GetOrder(context.Background(), "ORDER-9")
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, gateway.OrderCompleted, res.Value.Status)
	assert.Equal(t, "CAP-9", res.Value.CaptureID)
}

func TestCaptureDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ORDER-2","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-2","status":"DECLINED"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "c", "s", "", time.Second)
	res, err := client.CaptureOrder(context.Background(), "ORDER-2")
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.NotEmpty(t, res.Failure)
}

func TestWebhookSignature(t *testing.T) {
	payload := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`)
	sig := SignWebhookPayload(payload, "whsec")

	client := NewClient("http://unused", "c", "s", "whsec", time.Second)
	assert.True(t, client.ValidateWebhookSignature(payload, sig))
	assert.False(t, client.ValidateWebhookSignature(payload, "deadbeef"))
	assert.False(t, client.ValidateWebhookSignature(append(payload, ' '), sig))
	assert.False(t, VerifyWebhookSignature(payload, sig, ""))
}
