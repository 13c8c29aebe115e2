// Package pricing computes sliding-scale charges: a member may pay a reduced
// share of an event's base price, up to a configured maximum discount.
package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/apperr"
	"github.com/Shivanand-hulikatti/event-admission-ledger/internal/money"
)

// Percentage is a discount in hundredths of a percent: 2500 means 25.00%.
type Percentage int64

const (
	hundred Percentage = 100_00

	// DefaultMaxPercentage is the largest discount accepted unless configured otherwise.
	DefaultMaxPercentage Percentage = 75_00
)

// Percent builds a Percentage from a whole number of percent.
func Percent(p int64) Percentage { return Percentage(p * 100) }

// ParsePercentage reads "25", "25.5" or "25.50". An empty string is 0.
// Negative values and values above 100 are rejected.
func ParsePercentage(s string) (Percentage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, apperr.Validation(apperr.CodeSlidingScaleOutOfRange, "sliding scale percentage %q cannot be negative", s)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && frac == "") || len(frac) > 2 || !isDigits(frac) {
		return 0, apperr.Validation(apperr.CodeSlidingScaleOutOfRange, "sliding scale percentage %q is not a valid percentage", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, apperr.Validation(apperr.CodeSlidingScaleOutOfRange, "sliding scale percentage %q is not a valid percentage", s)
	}
	if w > 100 {
		return 0, apperr.Validation(apperr.CodeSlidingScaleOutOfRange, "sliding scale percentage %q exceeds 100", s)
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	return Percentage(w*100 + f), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (p Percentage) String() string {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the percentage as a decimal string, e.g. "25.00".
func (p Percentage) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the decimal string form.
func (p *Percentage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParsePercentage(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Calculator applies sliding-scale discounts.
type Calculator struct {
	MaxPercentage Percentage
}

// NewCalculator returns a Calculator; a non-positive max or one above 100% falls back to the default.
func NewCalculator(limit Percentage) Calculator {
	if limit <= 0 || limit > hundred {
		limit = DefaultMaxPercentage
	}
	return Calculator{MaxPercentage: limit}
}

// Validate checks p against [0, MaxPercentage].
func (c Calculator) Validate(p Percentage) error {
	if p < 0 || p > c.MaxPercentage {
		return apperr.Validation(apperr.CodeSlidingScaleOutOfRange,
			"sliding scale percentage must be between 0.00 and %s, got %s", c.MaxPercentage, p)
	}
	return nil
}

// Charge returns base × (1 − p/100), rounded half away from zero to the minor unit.
func (c Calculator) Charge(base money.Money, p Percentage) (money.Money, error) {
	if err := c.Validate(p); err != nil {
		return money.Money{}, err
	}
	if !base.IsPositive() {
		return money.Money{}, apperr.Validation(apperr.CodeInvalidAmount, "base amount must be positive, got %s", base)
	}
	// base × 100_00 must fit in an int64.
	if base.Minor > money.MaxMinor {
		return money.Money{}, apperr.Validation(apperr.CodeInvalidAmount, "base amount %s exceeds the maximum of %s",
			base, money.New(money.MaxMinor, base.Currency))
	}

	num := base.Minor * int64(hundred-p)
	q, r := num/int64(hundred), num%int64(hundred)
	if 2*r >= int64(hundred) {
		q++
	}
	return money.New(q, base.Currency), nil
}
