// Package apperr defines the error taxonomy shared by the admission and
// ledger services. Handlers map an error's Kind to an HTTP status.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how a caller should react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindTransient
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error codes.
const (
	CodeSlidingScaleOutOfRange     = "SlidingScaleOutOfRange"
	CodeInvalidAmount              = "InvalidAmount"
	CodeCurrencyMismatch           = "CurrencyMismatch"
	CodeReasonTooShort             = "ReasonTooShort"
	CodeRefundExceedsAvailable     = "RefundExceedsAvailable"
	CodeNotEligibleForRefund       = "NotEligibleForRefund"
	CodeInvalidStatusTransition    = "InvalidStatusTransition"
	CodeRegistrationNotConfirmed   = "RegistrationNotConfirmed"
	CodeRegistrationOwnerMismatch  = "RegistrationOwnerMismatch"
	CodePaymentNotCapturable       = "PaymentNotCapturable"
	CodeInvalidWebhookSignature    = "InvalidWebhookSignature"
	CodeInvalidRequest             = "InvalidRequest"
	CodeAlreadyRegistered          = "AlreadyRegistered"
	CodePaymentAlreadyCompleted    = "PaymentAlreadyCompleted"
	CodePaymentInProgress          = "PaymentInProgress"
	CodeAdmissionRetriesExhausted  = "AdmissionRetriesExhausted"
	CodeGatewayOrderCreationFailed = "GatewayOrderCreationFailed"
	CodeGatewayCaptureFailed       = "GatewayCaptureFailed"
	CodeGatewayOutcomeUnknown      = "GatewayOutcomeUnknown"
	CodeEventNotFound              = "EventNotFound"
	CodeRegistrationNotFound       = "RegistrationNotFound"
	CodePaymentNotFound            = "PaymentNotFound"
	CodeRefundNotFound             = "RefundNotFound"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// ProcessorMessage carries the payment processor's own wording, verbatim.
	ProcessorMessage string
	Err              error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Kind and, when set, the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinel builds a comparison target for errors.Is.
func Sentinel(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Transient(code string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// External reports a failure of the payment processor. processorMsg is kept verbatim.
func External(code, processorMsg string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindExternal, Code: code, Message: fmt.Sprintf(format, args...), ProcessorMessage: processorMsg, Err: err}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of err, or "" when err is unclassified.
func CodeOf(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}
