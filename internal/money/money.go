// Package money provides exact-decimal arithmetic for monetary values.
package money

import "github.com/shopspring/decimal"

// Scale is the minor-unit precision for all stored amounts.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// LineTotal returns quantity * unit price without rounding.
func LineTotal(quantity int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// WithVAT applies a VAT percentage to a net amount and rounds the result to
// the minor-unit precision. Rounding policy is round-half-even (banker's
// rounding) via decimal.RoundBank.
func WithVAT(net decimal.Decimal, vatPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(vatPercent.Div(hundred))
	return net.Mul(factor).RoundBank(Scale)
}
