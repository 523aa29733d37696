package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GuestPrefix marks the user id of orders placed without an account.
const GuestPrefix = "guest-"

type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "creditCard"
	PaymentUPI        PaymentMethod = "upi"
	PaymentCOD        PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCreditCard || m == PaymentUPI || m == PaymentCOD
}

// Label is the human readable name shown on the confirmation page.
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCreditCard:
		return "Credit/Debit Card"
	case PaymentUPI:
		return "UPI Payment"
	case PaymentCOD:
		return "Cash on Delivery"
	}
	if m == "" {
		return ""
	}
	s := string(m)
	return strings.ToUpper(s[:1]) + s[1:]
}

type ShippingInfo struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,shopemail"`
	Phone    string `json:"phone" validate:"required,min=10"`
	Address  string `json:"address" validate:"required"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state" validate:"required"`
	ZipCode  string `json:"zipCode" validate:"required,min=6"`
}

// PaymentDetails are checked for format only and never stored.
type PaymentDetails struct {
	CardNumber string `json:"cardNumber,omitempty"`
	ExpiryDate string `json:"expiryDate,omitempty"`
	CVV        string `json:"cvv,omitempty"`
	CardName   string `json:"cardName,omitempty"`
	UPIID      string `json:"upiId,omitempty"`
}

type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	UserEmail         string          `json:"userEmail,omitempty"`
	Items             []CartItem      `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Shipping          decimal.Decimal `json:"shipping"`
	Total             decimal.Decimal `json:"total"`
	ShippingInfo      ShippingInfo    `json:"shippingInfo"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod"`
	Status            OrderStatus     `json:"status"`
	OrderDate         time.Time       `json:"orderDate"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
}

func (o Order) IsGuest() bool {
	return strings.HasPrefix(o.UserID, GuestPrefix)
}

func (o Order) Clone() Order {
	out := o
	out.Items = make([]CartItem, len(o.Items))
	copy(out.Items, o.Items)
	return out
}
