package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyRoundsHalfUp(t *testing.T) {
	cases := map[string]string{
		"10.005": "10.01",
		"10.004": "10.00",
		"0.125":  "0.13",
		"7":      "7.00",
		".5":     "0.50",
		"99.999": "100.00",
	}
	for in, want := range cases {
		m, err := NewMoney(in, "")
		require.NoError(t, err, in)
		assert.Equal(t, want, m.Amount(), in)
		assert.Equal(t, DefaultCurrency, m.Currency())
	}
}

func TestMoneyFromFloatUsesShortestDecimal(t *testing.T) {
	m, err := MoneyFromFloat(10.005, "pen")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), m.Cents())
	assert.Equal(t, "PEN 10.01", m.String())
}

func TestNewMoneyRejectsNegativeAndGarbage(t *testing.T) {
	_, err := NewMoney("-1.00", "PEN")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewMoney("12a", "PEN")
	assert.ErrorIs(t, err, ErrValidation)

	m, err := NewMoney("-0.001", "PEN")
	require.NoError(t, err, "rounds to zero")
	assert.True(t, m.IsZero())
}

func TestMoneySubtractNeverGoesNegative(t *testing.T) {
	ten, _ := NewMoney("10", "PEN")
	fifteen, _ := NewMoney("15", "PEN")

	_, err := ten.Subtract(fifteen)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	five, err := fifteen.Subtract(ten)
	require.NoError(t, err)
	assert.Equal(t, "5.00", five.Amount())
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	pen, _ := NewMoney("1", "PEN")
	usd, _ := NewMoney("1", "USD")

	_, err := pen.Add(usd)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = pen.GreaterThan(usd)
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, pen.Equal(usd))
}

func TestMoneyArithmetic(t *testing.T) {
	price, _ := NewMoney("45.50", "PEN")

	doubled, err := price.Multiply("2")
	require.NoError(t, err)
	assert.Equal(t, "91.00", doubled.Amount())

	third, err := price.Divide("3")
	require.NoError(t, err)
	assert.Equal(t, "15.17", third.Amount())

	fee, err := price.Percentage("10")
	require.NoError(t, err)
	assert.Equal(t, "4.55", fee.Amount())

	_, err = price.Divide("0")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = price.Multiply("-1")
	assert.ErrorIs(t, err, ErrValidation)

	less, err := fee.LessThan(price)
	require.NoError(t, err)
	assert.True(t, less)
}

func TestMoneyCentsRoundTrip(t *testing.T) {
	stored, err := MoneyFromCents(4550, "pen")
	require.NoError(t, err)
	parsed, err := NewMoney("45.5", "PEN")
	require.NoError(t, err)

	assert.True(t, stored.Equal(parsed))
	assert.Equal(t, int64(4550), parsed.Cents())
	assert.Equal(t, "45.50", stored.Amount())
	assert.InDelta(t, 45.5, stored.Float64(), 1e-9)

	_, err = MoneyFromCents(-1, "PEN")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewMoney("92233720368547758.08", "PEN")
	assert.ErrorIs(t, err, ErrValidation, "beyond int64 cents")

	zero := ZeroMoney("PEN")
	assert.True(t, zero.Equal(zeroCents(t)))
	sum, err := zero.Add(stored)
	require.NoError(t, err)
	assert.Equal(t, "45.50", sum.Amount())
}

func zeroCents(t *testing.T) Money {
	t.Helper()
	m, err := MoneyFromCents(0, "PEN")
	require.NoError(t, err)
	return m
}
