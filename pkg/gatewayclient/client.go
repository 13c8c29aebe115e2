// Package gatewayclient is an HTTP adapter for a PayPal-style checkout API.
// It implements gateway.Gateway.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/gateway"
)

// Client talks to the payment processor's REST API.
type Client struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	HTTPClient    *http.Client
}

// NewClient creates a processor client with a bounded request timeout.
func NewClient(baseURL, clientID, clientSecret, webhookSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:       baseURL,
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		WebhookSecret: webhookSecret,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ gateway.Gateway = (*Client)(nil)

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	CustomID    string `json:"custom_id"`
	Description string `json:"description,omitempty"`
	Amount      amount `json:"amount"`
}

// CreateOrderRequest is the body of POST /v2/checkout/orders.
type CreateOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type captureBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// OrderResponse is the processor's order representation.
type OrderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []captureBody `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o OrderResponse) firstCapture() (captureBody, bool) {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0], true
		}
	}
	return captureBody{}, false
}

// RefundCaptureRequest is the body of POST /v2/payments/captures/{id}/refund.
type RefundCaptureRequest struct {
	Amount      amount `json:"amount"`
	NoteToPayer string `json:"note_to_payer,omitempty"`
}

// RefundResponse is the processor's refund representation.
type RefundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorResponse represents an error body from the processor.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	Details    []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("payment processor error %d: %s - %s", e.StatusCode, e.Details[0].Issue, e.Details[0].Description)
	}
	if e.Name != "" || e.Message != "" {
		return fmt.Sprintf("payment processor error %d: %s - %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("payment processor error %d", e.StatusCode)
}

// isDefinitive reports whether the processor rejected the request outright.
// Server errors and throttling leave the outcome unknown.
func (e *ErrorResponse) isDefinitive() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests && e.StatusCode != http.StatusRequestTimeout
}

// CreateOrder opens a checkout order for the payment. The payment id travels as custom_id.
func (c *Client) CreateOrder(ctx context.Context, req gateway.OrderRequest) (gateway.Result[gateway.Order], error) {
	body := CreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			CustomID:    req.PaymentID.String(),
			Description: req.Description,
			Amount:      amount{CurrencyCode: string(req.Amount.Currency), Value: req.Amount.String()},
		}},
	}

	var resp OrderResponse
	if err := c.do(ctx, "create_order", http.MethodPost, "/v2/checkout/orders", req.PaymentID.String(), body, &resp); err != nil {
		return failedOrUnknown[gateway.Order](err)
	}
	return gateway.Success(gateway.Order{ID: resp.ID, Status: resp.Status}), nil
}

// CaptureOrder captures an approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (gateway.Result[gateway.Capture], error) {
	var resp OrderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.do(ctx, "capture_order", http.MethodPost, path, "capture-"+orderID, struct{}{}, &resp); err != nil {
		return failedOrUnknown[gateway.Capture](err)
	}
	capture, ok := resp.firstCapture()
	if !ok {
		return gateway.Result[gateway.Capture]{}, fmt.Errorf("capture order %s: response carried no capture", orderID)
	}
	if capture.Status == gateway.CaptureDeclined {
		return gateway.Failed[gateway.Capture]("capture declined by payment processor"), nil
	}
	return gateway.Success(gateway.Capture{ID: capture.ID, Status: capture.Status}), nil
}

// GetOrder reads an order without changing it.
func (c *Client) GetOrder(ctx context.Context, orderID string) (gateway.Result[gateway.Order], error) {
	var resp OrderResponse
	if err := c.do(ctx, "get_order", http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "", nil, &resp); err != nil {
		return failedOrUnknown[gateway.Order](err)
	}
	order := gateway.Order{ID: resp.ID, Status: resp.Status}
	if capture, ok := resp.firstCapture(); ok {
		order.CaptureID = capture.ID
	}
	return gateway.Success(order), nil
}

// RefundCapture refunds part or all of a captured payment.
func (c *Client) RefundCapture(ctx context.Context, req gateway.RefundRequest) (gateway.Result[gateway.RefundReceipt], error) {
	body := RefundCaptureRequest{
		Amount:      amount{CurrencyCode: string(req.Amount.Currency), Value: req.Amount.String()},
		NoteToPayer: req.Reason,
	}
	var resp RefundResponse
	path := "/v2/payments/captures/" + url.PathEscape(req.CaptureID) + "/refund"
	if err := c.do(ctx, "refund_capture", http.MethodPost, path, req.IdempotencyKey, body, &resp); err != nil {
		return failedOrUnknown[gateway.RefundReceipt](err)
	}
	return gateway.Success(gateway.RefundReceipt{ID: resp.ID, Status: resp.Status}), nil
}

// ValidateWebhookSignature checks the hex HMAC-SHA256 of the payload.
func (c *Client) ValidateWebhookSignature(payload []byte, signature string) bool {
	return VerifyWebhookSignature(payload, signature, c.WebhookSecret)
}

func failedOrUnknown[T any](err error) (gateway.Result[T], error) {
	var errResp *ErrorResponse
	if errors.As(err, &errResp) && errResp.isDefinitive() {
		msg := errResp.Message
		if len(errResp.Details) > 0 && errResp.Details[0].Description != "" {
			msg = errResp.Details[0].Description
		}
		if msg == "" {
			msg = errResp.Error()
		}
		return gateway.Failed[T](msg), nil
	}
	return gateway.Result[T]{}, err
}

// do is a generic helper that executes a JSON request and decodes the response.
func (c *Client) do(ctx context.Context, op, method, path, requestID string, payload, out any) error {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			slog.Warn("non-2xx response with unparsable body", "component", "gateway_client", "op", op, "status", resp.StatusCode)
		} else {
			slog.Warn("payment processor rejected request", "component", "gateway_client", "op", op, "status", resp.StatusCode, "name", errResp.Name)
		}
		return errResp
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
