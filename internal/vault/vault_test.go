package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	v, err := New("a-sufficiently-long-secret")
	require.NoError(t, err)

	sealed, err := v.Encrypt("CAPTURE-123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "CAPTURE-123")

	again, err := v.Encrypt("CAPTURE-123")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := v.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "CAPTURE-123", plain)
}

func TestEmptyValuesPassThrough(t *testing.T) {
	v, err := New("a-sufficiently-long-secret")
	require.NoError(t, err)

	sealed, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := v.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestWrongKeyFails(t *testing.T) {
	a, err := New("first-secret-value-123")
	require.NoError(t, err)
	b, err := New("second-secret-value-456")
	require.NoError(t, err)

	sealed, err := a.Encrypt("ORDER-1")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = a.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestShortKeyRejected(t *testing.T) {
	_, err := New("short")
	assert.Error(t, err)
}
