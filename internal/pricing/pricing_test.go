package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
)

func TestCharge(t *testing.T) {
	calc := NewCalculator(DefaultMaxPercentage)

	tests := []struct {
		name string
		base string
		pct  Percentage
		want string
	}{
		{"no discount", "100.00", 0, "100.00"},
		{"quarter off", "100.00", Percent(25), "75.00"},
		{"maximum discount", "100.00", Percent(75), "25.00"},
		{"half cent rounds away from zero", "10.01", Percent(50), "5.01"},
		{"fractional percentage", "80.00", 12_50, "70.00"},
		{"small amount half cent rounds up", "0.03", Percent(50), "0.02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Charge(money.MustParse(tt.base, money.USD), tt.pct)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, money.USD, got.Currency)
		})
	}
}

func TestChargeRejectsOutOfRange(t *testing.T) {
	calc := NewCalculator(DefaultMaxPercentage)

	for _, p := range []Percentage{Percent(80), -1, 75_01} {
		_, err := calc.Charge(money.MustParse("100.00", money.USD), p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.Sentinel(apperr.KindValidation, apperr.CodeSlidingScaleOutOfRange)))
		assert.Contains(t, err.Error(), "0.00")
		assert.Contains(t, err.Error(), "75.00")
	}
}

func TestChargeRejectsNonPositiveBase(t *testing.T) {
	_, err := NewCalculator(0).Charge(money.Zero(money.USD), 0)
	assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))
}

func TestConfiguredMaximum(t *testing.T) {
	calc := NewCalculator(Percent(50))
	_, err := calc.Charge(money.MustParse("100.00", money.USD), Percent(60))
	assert.Equal(t, apperr.CodeSlidingScaleOutOfRange, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "50.00")
}

func TestParsePercentage(t *testing.T) {
	p, err := ParsePercentage("25.5")
	require.NoError(t, err)
	assert.Equal(t, Percentage(25_50), p)

	p, err = ParsePercentage("")
	require.NoError(t, err)
	assert.Equal(t, Percentage(0), p)

	_, err = ParsePercentage("12.345")
	assert.Error(t, err)
	assert.Equal(t, "12.50", Percentage(12_50).String())
}

func TestParsePercentageRejectsInvalid(t *testing.T) {
	for _, in := range []string{"-0.50", "-5", "-0", "1.-5", "101", "9223372036854775807", "abc"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParsePercentage(in)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeSlidingScaleOutOfRange, apperr.CodeOf(err))
		})
	}
}

func TestChargeBoundsLargeAmounts(t *testing.T) {
	calc := NewCalculator(DefaultMaxPercentage)

	got, err := calc.Charge(money.New(money.MaxMinor, money.USD), Percent(50))
	require.NoError(t, err)
	assert.Equal(t, "500000000000.00", got.String())
	assert.True(t, got.IsPositive())

	full, err := calc.Charge(money.New(money.MaxMinor, money.USD), 0)
	require.NoError(t, err)
	assert.Equal(t, money.MaxMinor, full.Minor)

	_, err = calc.Charge(money.New(money.MaxMinor+1, money.USD), Percent(25))
	assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))

	_, err = calc.Charge(money.New(2_000_000_000_000_000, money.USD), Percent(25))
	assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))
}
