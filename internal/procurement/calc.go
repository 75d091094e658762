package procurement

import (
	"github.com/shopspring/decimal"

	"github.com/procurio/procurio/internal/money"
)

// ComputeTotals derives the request financials from its item set.
// The net amount is the exact sum of quantity * price per item; the gross
// amount applies the VAT rate and rounds half-even to two decimal places.
// An empty item set yields zero totals.
func ComputeTotals(items []PurchaseItem, vatPercent decimal.Decimal) (net, gross decimal.Decimal) {
	totals := make([]decimal.Decimal, len(items))
	for i, item := range items {
		totals[i] = money.LineTotal(item.Quantity, item.Price)
	}
	net = money.Sum(totals...)
	gross = money.WithVAT(net, vatPercent)
	return net, gross
}
