package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an amount held in minor currency units (cents for USD).
// Arithmetic never leaves the integer domain; decimals exist only at the
// parse and display edges.
type Money struct {
	Minor    int64
	Currency currency.Unit
}

func ZeroMoney(cur currency.Unit) Money {
	return Money{Currency: cur}
}

// MinorScale returns the number of minor-unit digits of the currency.
func MinorScale(cur currency.Unit) int32 {
	scale, _ := currency.Standard.Rounding(cur)
	return int32(scale)
}

// MoneyFromDecimal converts a major-unit decimal amount, rounding half-up
// to the currency's minor unit.
func MoneyFromDecimal(amount decimal.Decimal, cur currency.Unit) Money {
	minor := amount.Shift(MinorScale(cur)).Round(0)
	return Money{Minor: minor.IntPart(), Currency: cur}
}

// ParseMoney parses a major-unit string such as "29.99".
func ParseMoney(amount string, cur currency.Unit) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("decimal.NewFromString[%s]: %w", amount, err)
	}

	return MoneyFromDecimal(d, cur), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Minor, -MinorScale(m.Currency))
}

func (m Money) IsZero() bool {
	return m.Minor == 0
}

func (m Money) Add(other Money) Money {
	return Money{Minor: m.Minor + other.Minor, Currency: m.Currency}
}

func (m Money) Mul(n int64) Money {
	return Money{Minor: m.Minor * n, Currency: m.Currency}
}

func (m Money) GreaterThan(other Money) bool {
	return m.Minor > other.Minor
}

func (m Money) SameCurrency(other Money) bool {
	return m.Currency.String() == other.Currency.String()
}

// String formats for display, e.g. "USD 216.00".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Decimal().StringFixed(MinorScale(m.Currency)))
}

type moneyJSON struct {
	Minor    int64  `json:"minor"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Minor: m.Minor, Currency: m.Currency.String()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cur, err := currency.ParseISO(raw.Currency)
	if err != nil {
		return fmt.Errorf("currency[%s] is not valid: %w", raw.Currency, err)
	}

	m.Minor = raw.Minor
	m.Currency = cur
	return nil
}
