package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/identity"
	"github.com/fjod/stonehub/internal/order"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	orders  *order.Service
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders *order.Service, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type AdvanceRequestDTO struct {
	Status domain.OrderStatus `json:"status"`
}

type OrderListResponseDTO struct {
	Orders []OrderResponseDTO `json:"orders"`
}

// GET /api/v1/orders/last?orderId=
func (h *OrdersHandler) LastOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, err := h.orders.LastOrder(ctx, storeFromContext(r.Context()), r.URL.Query().Get("orderId"))
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orderResponse(o))
}

// GET /api/v1/orders/{orderID}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, err := h.orders.GetOrder(ctx, storeFromContext(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orderResponse(o))
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	st := storeFromContext(r.Context())

	user, err := identity.CurrentUser(ctx, st)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "please log in to view your orders")
		return
	}

	orders, err := h.orders.ListOrdersForUser(ctx, st, *user)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}

	resp := OrderListResponseDTO{Orders: make([]OrderResponseDTO, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, orderResponse(o))
	}
	respondJSON(w, http.StatusOK, resp)
}

// POST /api/v1/orders/{orderID}/cancel
func (h *OrdersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	o, err := h.orders.Cancel(ctx, storeFromContext(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orderResponse(o))
}

// POST /api/v1/orders/{orderID}/advance
func (h *OrdersHandler) Advance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AdvanceRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	o, err := h.orders.Advance(ctx, storeFromContext(r.Context()), chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orderResponse(o))
}

// DELETE /api/v1/orders
func (h *OrdersHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.orders.ClearHistory(ctx, storeFromContext(r.Context())); err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
