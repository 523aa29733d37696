package cart

import (
	"github.com/fjod/stonehub/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// FreeShippingThreshold is inclusive: a subtotal of exactly 5000 ships free.
	FreeShippingThreshold = decimal.NewFromInt(5000)
	ShippingSurcharge     = decimal.NewFromInt(350)
)

// ComputeTotals derives subtotal, shipping and total from the items. An
// empty cart has all-zero totals.
func ComputeTotals(items []domain.CartItem) domain.Totals {
	if len(items) == 0 {
		return domain.Totals{Subtotal: decimal.Zero, Shipping: decimal.Zero, Total: decimal.Zero}
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	shipping := ShippingSurcharge
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return domain.Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal.Add(shipping),
	}
}

func recompute(c *domain.Cart) {
	totals := ComputeTotals(c.Items)
	c.Subtotal = totals.Subtotal
	c.Shipping = totals.Shipping
	c.Total = totals.Total
}
