package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a Money value is built without a currency code.
const DefaultCurrency = "PEN"

// Money is an exact, non-negative amount rounded to cents with its ISO
// currency code. Values are immutable; every operation returns a new
// Money. Binary operations require matching currencies.
type Money struct {
	amount   decimal.Decimal
	currency string
}

const centPlaces = 2

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(1<<63 - 1)
)

// NewMoney parses a decimal amount such as "10.005" and rounds it half-up
// to two fractional digits. Negative results are rejected.
func NewMoney(amount string, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, ValidationError{Field: "amount", Value: amount, Msg: "invalid amount"}
	}
	return newMoney(d, amount, currency)
}

// MoneyFromFloat converts f through its shortest decimal representation,
// so 10.005 rounds to 10.01 rather than to the binary approximation.
func MoneyFromFloat(f float64, currency string) (Money, error) {
	return newMoney(decimal.NewFromFloat(f), f, currency)
}

// MoneyFromCents builds a Money directly from minor units.
func MoneyFromCents(cents int64, currency string) (Money, error) {
	if cents < 0 {
		return Money{}, ValidationError{Field: "amount", Value: cents, Msg: "amount cannot be negative"}
	}
	return Money{amount: decimal.New(cents, -centPlaces), currency: normalizeCurrency(currency)}, nil
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) Money {
	return Money{currency: normalizeCurrency(currency)}
}

// Cents is the stored form of the amount.
func (m Money) Cents() int64 { return m.amount.Shift(centPlaces).IntPart() }

func (m Money) Currency() string {
	if m.currency == "" {
		return DefaultCurrency
	}
	return m.currency
}

// Amount renders the value without currency, e.g. "10.01".
func (m Money) Amount() string { return m.amount.StringFixed(centPlaces) }

func (m Money) Float64() float64 { return m.amount.InexactFloat64() }

func (m Money) String() string { return m.Currency() + " " + m.Amount() }

func (m Money) IsZero() bool { return m.amount.IsZero() }

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	sum := m.amount.Add(other.amount)
	return newMoney(sum, sum.String(), m.Currency())
}

// Subtract fails instead of producing a negative amount.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	diff := m.amount.Sub(other.amount)
	if diff.IsNegative() {
		return Money{}, ValidationError{
			Field: "amount",
			Value: fmt.Sprintf("%s - %s", m.Amount(), other.Amount()),
			Msg:   "result cannot be negative",
		}
	}
	return Money{amount: diff, currency: m.Currency()}, nil
}

// Multiply scales by a decimal factor given as a string, e.g. "1.5".
func (m Money) Multiply(factor string) (Money, error) {
	f, err := decimal.NewFromString(strings.TrimSpace(factor))
	if err != nil || f.IsNegative() {
		return Money{}, ValidationError{Field: "factor", Value: factor, Msg: "factor cannot be negative"}
	}
	return newMoney(m.amount.Mul(f), factor, m.Currency())
}

// Divide splits the amount by a positive decimal divisor.
func (m Money) Divide(divisor string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(divisor))
	if err != nil || !d.IsPositive() {
		return Money{}, ValidationError{Field: "divisor", Value: divisor, Msg: "divisor must be positive"}
	}
	return newMoney(m.amount.DivRound(d, centPlaces), divisor, m.Currency())
}

// Percentage returns percent/100 of the amount.
func (m Money) Percentage(percent string) (Money, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(percent))
	if err != nil || p.IsNegative() {
		return Money{}, ValidationError{Field: "percent", Value: percent, Msg: "percentage cannot be negative"}
	}
	return newMoney(m.amount.Mul(p).Div(hundred), percent, m.Currency())
}

func (m Money) GreaterThan(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.amount.GreaterThan(other.amount), nil
}

func (m Money) LessThan(other Money) (bool, error) {
	if err := m.sameCurrency(other); err != nil {
		return false, err
	}
	return m.amount.LessThan(other.amount), nil
}

// Equal compares amount and currency; differing currencies are simply unequal.
func (m Money) Equal(other Money) bool {
	return m.Currency() == other.Currency() && m.amount.Equal(other.amount)
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency() != other.Currency() {
		return ValidationError{
			Field: "currency",
			Value: other.Currency(),
			Msg:   fmt.Sprintf("currency mismatch: %s vs %s", m.Currency(), other.Currency()),
		}
	}
	return nil
}

// newMoney rounds d half away from zero to cents and enforces the
// non-negative and int64-cents bounds. raw is reported on failure.
func newMoney(d decimal.Decimal, raw any, currency string) (Money, error) {
	d = d.Round(centPlaces)
	if d.IsNegative() {
		return Money{}, ValidationError{Field: "amount", Value: raw, Msg: "amount cannot be negative"}
	}
	if d.Shift(centPlaces).GreaterThan(maxCents) {
		return Money{}, ValidationError{Field: "amount", Value: raw, Msg: "amount out of range"}
	}
	return Money{amount: d, currency: normalizeCurrency(currency)}, nil
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}
