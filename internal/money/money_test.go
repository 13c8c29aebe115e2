package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"100", 10000, false},
		{"100.5", 10050, false},
		{"10.01", 1001, false},
		{" 0.99 ", 99, false},
		{"-5.25", -525, false},
		{"10.001", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"10.", 0, true},
		{".5", 0, true},
		{"999999999999.99", MaxMinor, false},
		{"-999999999999.99", -MaxMinor, false},
		{"1000000000000", 0, true},
		{"200000000000000000", 0, true},
		{"92233720368547758.07", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in, USD)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Minor)
			assert.Equal(t, USD, got.Currency)
		})
	}
}

func TestParseRejectsUnknownCurrency(t *testing.T) {
	_, err := Parse("1.00", Currency("JPY"))
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func TestParseCurrencyNormalises(t *testing.T) {
	c, err := ParseCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, EUR, c)
}

func TestStringAndDisplay(t *testing.T) {
	assert.Equal(t, "40.00", New(4000, USD).String())
	assert.Equal(t, "$10.50", New(1050, USD).Display())
	assert.Equal(t, "€10.50", New(1050, EUR).Display())
	assert.Equal(t, "£0.05", New(5, GBP).Display())
	assert.Equal(t, "-$1.20", New(-120, USD).Display())
}

func TestAddAndSub(t *testing.T) {
	sum, err := New(1000, USD).Add(New(550, USD))
	require.NoError(t, err)
	assert.Equal(t, int64(1550), sum.Minor)

	diff, err := New(1000, USD).Sub(New(400, USD))
	require.NoError(t, err)
	assert.Equal(t, int64(600), diff.Minor)

	_, err = New(1000, USD).Add(New(1000, EUR))
	require.ErrorIs(t, err, ErrCurrencyMismatch)
	assert.Contains(t, err.Error(), "cannot add money with different currencies: USD and EUR")

	_, err = New(100, USD).Sub(New(200, USD))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestJSON(t *testing.T) {
	raw, err := json.Marshal(New(10000, CAD))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"100.00","currency":"CAD"}`, string(raw))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"12.3","currency":"usd"}`), &m))
	assert.Equal(t, New(1230, USD), m)
}
