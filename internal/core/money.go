// Package core holds the expense model and the currency conventions.
//
// Every amount is persisted in BaseCurrency (FMG) as an integer. Amounts entered
// in AlternateCurrency (Ariary) are multiplied by AlternateRate before storage;
// Ariary figures shown to users are always derived by dividing, rounded to two
// decimals, and never stored.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AlternateRate is the number of base units in one alternate unit.
const AlternateRate int64 = 5

var rate = decimal.NewFromInt(AlternateRate)

// ToBase converts an amount entered in cur to integer base units.
//
// Examples:
//
//	ToBase(2000, Ariary) -> 10000
//	ToBase(2500, FMG)    -> 2500
//	ToBase(0.2, Ariary)  -> 1
//	ToBase(0.1, Ariary)  -> error (half an FMG)
func ToBase(raw decimal.Decimal, cur Currency) (int64, error) {
	if !cur.Valid() {
		return 0, ErrInvalidCurrency
	}
	if raw.IsNegative() {
		return 0, ErrNegativeAmount
	}
	base := raw
	if cur == AlternateCurrency {
		base = raw.Mul(rate)
	}
	if !base.Equal(base.Truncate(0)) {
		return 0, ErrFractionalAmount
	}
	return base.IntPart(), nil
}

// FromBase expresses a base amount in cur, rounded to two decimals.
func FromBase(amount int64, cur Currency) decimal.Decimal {
	d := decimal.NewFromInt(amount)
	if cur == AlternateCurrency {
		d = d.DivRound(rate, 2)
	}
	return d
}

// ParseAmount parses user input such as "12500", "2 500" or "12,5".
// A single comma is treated as the decimal separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return decimal.Zero, ErrInvalidInput
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidInput
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// Symbol is the display suffix used for cur.
func (c Currency) Symbol() string {
	if c == Ariary {
		return "Ar"
	}
	return "FMG"
}

// FormatAmount renders d with thousands separators and at most two decimals,
// e.g. "12,500 FMG" or "2,500.4 Ar".
func FormatAmount(d decimal.Decimal, cur Currency) string {
	return formatDecimal(d.Round(2)) + " " + cur.Symbol()
}

// FormatBase renders a base amount in cur.
func FormatBase(amount int64, cur Currency) string {
	return FormatAmount(FromBase(amount, cur), cur)
}

func formatDecimal(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
