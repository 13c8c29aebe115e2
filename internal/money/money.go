// Package money implements a fixed-point monetary amount held in integer
// minor units (cents) together with its ISO-4217 currency.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Currency is an ISO-4217 currency code supported by the ledger.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CAD Currency = "CAD"
)

// MaxMinor is the largest amount accepted, in minor units (999,999,999,999.99).
const MaxMinor int64 = 99_999_999_999_999

var (
	// ErrUnsupportedCurrency is returned for currency codes outside the supported set.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrCurrencyMismatch is returned when combining amounts of different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrInsufficientFunds is returned when a subtraction would go below zero.
	ErrInsufficientFunds = errors.New("insufficient funds for subtraction")
	// ErrInvalidAmount is returned when a decimal amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
)

var symbols = map[Currency]string{
	USD: "$",
	EUR: "€",
	GBP: "£",
	CAD: "C$",
}

// ParseCurrency normalises and validates a currency code.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := symbols[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	return c, nil
}

// Symbol returns the display symbol for the currency.
func (c Currency) Symbol() string {
	if s, ok := symbols[c]; ok {
		return s
	}
	return string(c) + " "
}

// Money is an amount in minor units. Every supported currency has two decimals.
type Money struct {
	Minor    int64
	Currency Currency
}

// New returns an amount of minor units in the given currency.
func New(minor int64, currency Currency) Money {
	return Money{Minor: minor, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

// Parse reads a decimal string such as "100", "10.5" or "10.50".
// More than two fractional digits are rejected rather than rounded.
func Parse(amount string, currency Currency) (Money, error) {
	c, err := ParseCurrency(string(currency))
	if err != nil {
		return Money{}, err
	}
	minor, err := ParseAmount(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Minor: minor, Currency: c}, nil
}

// ParseAmount reads a decimal string into minor units without a currency.
func ParseAmount(amount string) (int64, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && frac == "") || len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	if units > MaxMinor/100 {
		return 0, fmt.Errorf("%w: %q exceeds maximum", ErrInvalidAmount, amount)
	}
	minor := units*100 + cents
	if minor > MaxMinor {
		return 0, fmt.Errorf("%w: %q exceeds maximum", ErrInvalidAmount, amount)
	}
	if neg {
		minor = -minor
	}
	return minor, nil
}

// MustParse is Parse for constants and tests; it panics on error.
func MustParse(amount string, currency Currency) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// String renders the plain decimal form, e.g. "40.00".
func (m Money) String() string {
	minor := m.Minor
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// Display renders the amount with its currency symbol, e.g. "$40.00".
func (m Money) Display() string {
	s := m.String()
	if strings.HasPrefix(s, "-") {
		return "-" + m.Currency.Symbol() + s[1:]
	}
	return m.Currency.Symbol() + s
}

func (m Money) IsZero() bool     { return m.Minor == 0 }
func (m Money) IsPositive() bool { return m.Minor > 0 }

// Add returns m + o. Both amounts must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: cannot add money with different currencies: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Minor: m.Minor + o.Minor, Currency: m.Currency}, nil
}

// Sub returns m - o. Both amounts must share a currency and the result may not be negative.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: cannot subtract money with different currencies: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	if o.Minor > m.Minor {
		return Money{}, ErrInsufficientFunds
	}
	return Money{Minor: m.Minor - o.Minor, Currency: m.Currency}, nil
}

// GreaterThan reports whether m > o. Amounts in different currencies are never comparable.
func (m Money) GreaterThan(o Money) bool {
	return m.Currency == o.Currency && m.Minor > o.Minor
}

type wireMoney struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON encodes as {"amount":"100.00","currency":"USD"}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMoney{Amount: m.String(), Currency: m.Currency})
}

// UnmarshalJSON accepts the same shape MarshalJSON produces.
func (m *Money) UnmarshalJSON(data []byte) error {
	var w wireMoney
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := Parse(w.Amount, w.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
