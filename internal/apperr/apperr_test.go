package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("register: %w", Conflict(CodeAlreadyRegistered, "already registered"))

	assert.True(t, errors.Is(err, Sentinel(KindConflict, CodeAlreadyRegistered)))
	assert.True(t, errors.Is(err, Sentinel(KindConflict, "")))
	assert.False(t, errors.Is(err, Sentinel(KindConflict, CodePaymentInProgress)))
	assert.False(t, errors.Is(err, Sentinel(KindValidation, CodeAlreadyRegistered)))
}

func TestKindAndCodeOf(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := fmt.Errorf("wrap: %w", Transient(CodeAdmissionRetriesExhausted, cause, "admission retries exhausted"))

	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, CodeAdmissionRetriesExhausted, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestExternalKeepsProcessorMessage(t *testing.T) {
	err := External(CodeGatewayOrderCreationFailed, "INSTRUMENT_DECLINED", nil, "payment processor rejected the order")

	ae, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "INSTRUMENT_DECLINED", ae.ProcessorMessage)
	assert.Equal(t, "payment processor rejected the order", ae.Error())
	assert.Equal(t, "external", ae.Kind.String())
}
