package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	verr := NewValidationError()
	assert.False(t, verr.HasErrors())

	verr.Add("zipCode", "first")
	verr.Add("zipCode", "second")
	verr.Add("email", "bad email")

	assert.True(t, verr.HasErrors())
	assert.Equal(t, "first", verr.Fields["zipCode"])
	assert.Equal(t, "validation failed: email: bad email; zipCode: first", verr.Error())

	wrapped := fmt.Errorf("checkout: %w", verr)
	assert.True(t, errors.Is(wrapped, ErrValidation))

	var target *ValidationError
	assert.True(t, errors.As(wrapped, &target))
}

func TestPaymentMethodLabel(t *testing.T) {
	assert.Equal(t, "Credit/Debit Card", PaymentCreditCard.Label())
	assert.Equal(t, "UPI Payment", PaymentUPI.Label())
	assert.Equal(t, "Cash on Delivery", PaymentCOD.Label())
	assert.Equal(t, "Wallet", PaymentMethod("wallet").Label())
	assert.False(t, PaymentMethod("wallet").Valid())
}

func TestCartHelpers(t *testing.T) {
	c := NewCart()
	assert.True(t, c.IsEmpty())

	c.Items = append(c.Items, CartItem{ID: "a", Quantity: 2}, CartItem{ID: "b", Quantity: 3})
	assert.Equal(t, 5, c.ItemCount())

	i, ok := c.Find("b")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	clone := c.Clone()
	clone.Items[0].Quantity = 10
	assert.Equal(t, 2, c.Items[0].Quantity)
}
