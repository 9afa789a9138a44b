package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidCurrency = errors.New("money: invalid currency code")
	ErrInvalidAmount   = errors.New("money: amount must be a finite number")
)

// Money keeps amounts in integer minor units (cents) to avoid floating point drift.
type Money struct {
	Minor    int64  `json:"amount_minor"`
	Currency string `json:"currency"`
}

func New(minor int64, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	return Money{Minor: minor, Currency: currency}, nil
}

// FromMajor converts a decimal amount such as 120.5 into minor units.
func FromMajor(amount float64, currency string) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}, ErrInvalidAmount
	}
	return New(int64(math.Round(amount*100)), currency)
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(minor int64, currency string) Money {
	m, err := New(minor, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Major returns the amount in major units, the shape the booking platforms expect.
func (m Money) Major() float64 {
	return float64(m.Minor) / 100
}

func (m Money) IsZero() bool {
	return m.Minor == 0
}

func (m Money) String() string {
	sign := ""
	minor := m.Minor
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, m.Currency)
}
