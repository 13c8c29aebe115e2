// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/model"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/service"
)

// Handler holds all HTTP handlers for the admission API.
type Handler struct {
	admission       *service.AdmissionService
	payments        *service.PaymentLedger
	refunds         *service.RefundLedger
	defaultCurrency money.Currency
	validate        *validator.Validate
	logger          *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(admission *service.AdmissionService, payments *service.PaymentLedger, refunds *service.RefundLedger, defaultCurrency money.Currency, logger *slog.Logger) *Handler {
	if defaultCurrency == "" {
		defaultCurrency = money.USD
	}
	return &Handler{
		admission:       admission,
		payments:        payments,
		refunds:         refunds,
		defaultCurrency: defaultCurrency,
		validate:        validator.New(),
		logger:          logger,
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeAndValidate decodes the body into dst and runs its validate tags.
// It writes the 400 response itself and reports whether the caller may go on.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
			Error: validationMessage(err),
			Code:  apperr.CodeInvalidRequest,
		})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// urlID parses the {name} path parameter as a UUID, writing a 400 on failure.
func urlID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// writeAppError maps a service error onto an HTTP status.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := model.ErrorResponse{Error: ae.Message, Code: ae.Code}
	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindTransient:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case apperr.KindExternal:
		status = http.StatusBadGateway
		resp.ProcessorMessage = ae.ProcessorMessage
		h.logger.Warn("payment processor error", "path", r.URL.Path, "code", ae.Code, "error", err)
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp = model.ErrorResponse{Error: "internal server error"}
	}
	writeJSON(w, status, resp)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
