package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/identity"
	"github.com/fjod/stonehub/internal/order"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accounts *identity.Accounts
	orders   *order.Service
	timeout  time.Duration
	log      *zap.Logger
}

func NewAccountHandler(accounts *identity.Accounts, orders *order.Service, timeout time.Duration, log *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		orders:   orders,
		timeout:  timeout,
		log:      log,
	}
}

// LoginResponseDTO tells the page whether a deferred checkout should resume.
type LoginResponseDTO struct {
	User              domain.User `json:"user"`
	ProceedToCheckout bool        `json:"proceedToCheckout"`
}

// POST /api/v1/account/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	st := storeFromContext(r.Context())

	var req identity.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, err := h.accounts.Register(ctx, st, req)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// POST /api/v1/account/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	st := storeFromContext(r.Context())

	var req identity.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, err := h.accounts.Login(ctx, st, req)
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}

	pending, err := h.orders.CheckoutPending(ctx, st)
	if err != nil {
		h.log.Warn("failed to read checkout flag", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, LoginResponseDTO{User: user, ProceedToCheckout: pending})
}

// POST /api/v1/account/logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.accounts.Logout(ctx, storeFromContext(r.Context())); err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/account/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, err := identity.CurrentUser(ctx, storeFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.log, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "not logged in")
		return
	}
	respondJSON(w, http.StatusOK, user)
}
