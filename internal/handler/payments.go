package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/pricing"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
)

// WebhookSignatureHeader carries the processor's signature of the raw body.
const WebhookSignatureHeader = "X-Gateway-Signature"

// ProcessPayment handles POST /registrations/{id}/payments
// Charges the authenticated member for their confirmed registration.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	regID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req model.ProcessPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	currency := h.defaultCurrency
	if req.Currency != "" {
		currency = money.Currency(req.Currency)
	}
	base, err := money.Parse(req.BaseAmount, currency)
	if err != nil {
		code := apperr.CodeInvalidAmount
		if errors.Is(err, money.ErrUnsupportedCurrency) {
			code = apperr.CodeInvalidRequest
		}
		h.writeAppError(w, r, apperr.Validation(code, "%v", err))
		return
	}
	pct, err := pricing.ParsePercentage(req.SlidingScalePercentage)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	payment, err := h.payments.ProcessPayment(r.Context(), service.ProcessPayment{
		RegistrationID: regID,
		UserID:         actor.ID,
		BaseAmount:     base,
		SlidingScale:   pct,
		Method:         strings.TrimSpace(req.Method),
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// GetRegistrationPayment handles GET /registrations/{id}/payment
func (h *Handler) GetRegistrationPayment(w http.ResponseWriter, r *http.Request) {
	regID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.payments.GetPaymentForRegistration(r.Context(), regID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// GetPayment handles GET /payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// CapturePayment handles POST /payments/{id}/capture
// The payer or an admin may capture an approved order.
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	current, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if current.UserID != actor.ID && !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "you may only capture your own payment")
		return
	}

	payment, err := h.payments.CapturePayment(r.Context(), id, &actor.ID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// UpdatePaymentStatus handles PUT /payments/{id}/status
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req model.UpdatePaymentStatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	payment, err := h.payments.UpdatePaymentStatus(r.Context(), id, req.Status, req.ExternalRef, &actor.ID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// ListFailures handles GET /payments/{id}/failures
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	failures, err := h.payments.ListFailures(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if failures == nil {
		failures = []model.PaymentFailure{}
	}
	writeJSON(w, http.StatusOK, failures)
}

// ListAudit handles GET /payments/{id}/audit
// Entries are returned oldest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.payments.ListAudit(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.AuditLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GatewayWebhook handles POST /webhooks/gateway
// The signature covers the raw body, so it is read before any decoding.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	if err := h.payments.HandleWebhook(r.Context(), body, r.Header.Get(WebhookSignatureHeader)); err != nil {
		if apperr.CodeOf(err) == apperr.CodeInvalidWebhookSignature {
			writeJSON(w, http.StatusUnauthorized, model.ErrorResponse{Error: "invalid signature", Code: apperr.CodeInvalidWebhookSignature})
			return
		}
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
