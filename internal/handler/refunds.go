package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
)

// ProcessRefund handles POST /payments/{id}/refunds
// The amount is read in the payment's currency.
func (h *Handler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req model.ProcessRefundRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	minor, err := money.ParseAmount(req.Amount)
	if err != nil {
		h.writeAppError(w, r, apperr.Validation(apperr.CodeInvalidAmount, "%v", err))
		return
	}
	actor, _ := ActorFromContext(r.Context())

	refund, err := h.refunds.ProcessRefund(r.Context(), service.ProcessRefund{
		PaymentID:   paymentID,
		Amount:      money.Money{Minor: minor},
		Reason:      req.Reason,
		ProcessedBy: actor.ID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	status := http.StatusCreated
	if refund.Status == model.RefundFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, refund)
}

// ListRefunds handles GET /payments/{id}/refunds
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	refunds, err := h.refunds.ListRefunds(r.Context(), paymentID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if refunds == nil {
		refunds = []model.Refund{}
	}
	writeJSON(w, http.StatusOK, refunds)
}

// MaximumRefund handles GET /payments/{id}/refunds/maximum
func (h *Handler) MaximumRefund(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	limit, err := h.refunds.GetMaximumRefundAmount(r.Context(), paymentID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id": paymentID,
		"maximum":    limit,
		"display":    limit.Display(),
	})
}

// GetRefund handles GET /refunds/{id}
func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	refund, err := h.refunds.GetRefund(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}

// ResolveRefund handles PUT /refunds/{id}/status
// Only refunds still pending can change status.
func (h *Handler) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req model.ResolveRefundRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	actor, _ := ActorFromContext(r.Context())

	refund, err := h.refunds.ResolveRefund(r.Context(), service.ResolveRefund{
		RefundID:    id,
		Status:      req.Status,
		ExternalRef: req.ExternalRef,
		Reason:      req.Reason,
		ResolvedBy:  actor.ID,
	})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refund)
}
