package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/stonehub/internal/cart"
	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/identity"
	"github.com/fjod/stonehub/internal/order"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	carts   *cart.Service
	orders  *order.Service
	timeout time.Duration
	log     *zap.Logger
}

func NewCheckoutHandler(carts *cart.Service, orders *order.Service, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		carts:   carts,
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type CheckoutRequestDTO struct {
	order.CheckoutInput
	// DeferToLogin asks to hold an anonymous checkout until the visitor
	// has logged in instead of placing a guest order.
	DeferToLogin bool `json:"deferToLogin"`
}

// OrderResponseDTO adds the display label of the payment method.
type OrderResponseDTO struct {
	domain.Order
	PaymentMethodLabel string `json:"paymentMethodLabel"`
}

func orderResponse(o domain.Order) OrderResponseDTO {
	return OrderResponseDTO{Order: o, PaymentMethodLabel: o.PaymentMethod.Label()}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	st := storeFromContext(r.Context())

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c, err := h.carts.Load(ctx, st)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	if c.IsEmpty() {
		handleServiceError(w, h.log, domain.ErrEmptyCart)
		return
	}

	user, err := identity.CurrentUser(ctx, st)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	if user == nil && req.DeferToLogin {
		if err := h.orders.DeferCheckout(ctx, st); err != nil {
			handleServiceError(w, h.log, err)
			return
		}
		respondError(w, http.StatusUnauthorized, "login_required", "Please login to proceed with checkout.")
		return
	}

	placed, err := h.orders.PlaceOrder(ctx, st, c, req.CheckoutInput, user)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderResponse(placed))
}

type CheckoutPendingResponseDTO struct {
	ProceedToCheckout bool `json:"proceedToCheckout"`
}

// GET /api/v1/checkout/pending
func (h *CheckoutHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	pending, err := h.orders.CheckoutPending(ctx, storeFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, CheckoutPendingResponseDTO{ProceedToCheckout: pending})
}

// POST /api/v1/checkout/validate checks the form without placing an order.
func (h *CheckoutHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req order.CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.orders.Validate(req); err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"valid": true})
}
