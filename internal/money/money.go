// Package money provides currency-aware arithmetic in integer minor units.
// All document totals are computed here so rounding happens exactly once per
// rate application, half-up at the currency's minor-unit precision.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an immutable amount of a single currency in minor units.
type Money struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

// Zero returns the zero amount for a currency.
func Zero(code string) Money {
	return Money{Currency: code}
}

// New builds a Money from minor units.
func New(code string, minorUnits int64) Money {
	return Money{Currency: code, Amount: minorUnits}
}

// Precision returns the number of minor-unit digits for an ISO-4217 code
// (0 for JPY, 2 for USD/EUR). Unknown codes default to 2.
func Precision(code string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Cash.Rounding(unit)
	return int32(scale)
}

// ValidCode reports whether code parses as an ISO-4217 currency.
func ValidCode(code string) bool {
	_, err := currency.ParseISO(strings.ToUpper(code))
	return err == nil
}

// FromDecimal converts a major-unit decimal into minor units, rounding
// half away from zero at the currency precision.
func FromDecimal(code string, d decimal.Decimal) Money {
	p := Precision(code)
	minor := d.Shift(p).Round(0)
	return Money{Currency: code, Amount: minor.IntPart()}
}

// ToDecimal converts minor units back into a major-unit decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.New(m.Amount, 0).Shift(-Precision(m.Currency))
}

// Add returns m + other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("money: currency mismatch %s vs %s", m.Currency, other.Currency)
	}
	return Money{Currency: m.Currency, Amount: m.Amount + other.Amount}, nil
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Currency: m.Currency, Amount: -m.Amount}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.ToDecimal().StringFixed(Precision(m.Currency)))
}

// Rate describes a percentage or fixed rate value in major units.
type Rate struct {
	IsPercent bool
	Value     decimal.Decimal
}

// Percent builds a percentage rate.
func Percent(v string) Rate {
	return Rate{IsPercent: true, Value: decimal.RequireFromString(v)}
}

// Fixed builds a fixed major-unit rate.
func Fixed(v string) Rate {
	return Rate{Value: decimal.RequireFromString(v)}
}

// ApplyRate applies a rate to a base amount in minor units. Percentages round
// half away from zero at the currency precision; fixed values convert to
// minor units as given, with no clamping to the base.
func ApplyRate(code string, baseMinorUnits int64, rate Rate) Money {
	if rate.IsPercent {
		amount := decimal.New(baseMinorUnits, 0).
			Mul(rate.Value).
			Div(decimal.New(100, 0)).
			Round(0)
		return Money{Currency: code, Amount: amount.IntPart()}
	}
	return FromDecimal(code, rate.Value)
}

// LineAmount computes round(quantity * unitCost) at the currency precision.
func LineAmount(code string, quantity, unitCost decimal.Decimal) Money {
	return FromDecimal(code, quantity.Mul(unitCost))
}
