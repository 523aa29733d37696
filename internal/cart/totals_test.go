package cart

import (
	"testing"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func item(id string, price int64, qty int) domain.CartItem {
	return domain.CartItem{ID: id, Name: id, Price: decimal.NewFromInt(price), Quantity: qty}
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), "want %d, got %s", want, got)
}

func TestComputeTotals_BelowThreshold(t *testing.T) {
	totals := ComputeTotals([]domain.CartItem{item("a", 1000, 2), item("b", 2000, 1)})

	assertDecimal(t, 4000, totals.Subtotal)
	assertDecimal(t, 350, totals.Shipping)
	assertDecimal(t, 4350, totals.Total)
}

func TestComputeTotals_ThresholdIsInclusive(t *testing.T) {
	totals := ComputeTotals([]domain.CartItem{item("a", 1000, 3), item("b", 2000, 1)})

	assertDecimal(t, 5000, totals.Subtotal)
	assertDecimal(t, 0, totals.Shipping)
	assertDecimal(t, 5000, totals.Total)
}

func TestComputeTotals_Empty(t *testing.T) {
	totals := ComputeTotals(nil)

	assertDecimal(t, 0, totals.Subtotal)
	assertDecimal(t, 0, totals.Shipping)
	assertDecimal(t, 0, totals.Total)
}

func TestComputeTotals_FractionalPrices(t *testing.T) {
	price := decimal.RequireFromString("0.1")
	totals := ComputeTotals([]domain.CartItem{{ID: "a", Price: price, Quantity: 3}})

	assert.True(t, decimal.RequireFromString("0.3").Equal(totals.Subtotal))
	assert.True(t, decimal.RequireFromString("350.3").Equal(totals.Total))
}
