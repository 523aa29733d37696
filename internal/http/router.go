package http

import (
	"net/http"
	"time"

	"github.com/fjod/stonehub/internal/cart"
	"github.com/fjod/stonehub/internal/identity"
	"github.com/fjod/stonehub/internal/metrics"
	"github.com/fjod/stonehub/internal/order"
	"github.com/fjod/stonehub/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Adapter            *storage.Adapter
	Carts              *cart.Service
	Orders             *order.Service
	Accounts           *identity.Accounts
	Metrics            *metrics.Metrics
	Log                *zap.Logger
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func NewRouter(cfg RouterConfig) chi.Router {
	cartHandler := NewCartHandler(cfg.Carts, cfg.RequestTimeout, cfg.Log)
	checkoutHandler := NewCheckoutHandler(cfg.Carts, cfg.Orders, cfg.RequestTimeout, cfg.Log)
	ordersHandler := NewOrdersHandler(cfg.Orders, cfg.RequestTimeout, cfg.Log)
	if cfg.Accounts == nil {
		cfg.Accounts = identity.NewAccounts(cfg.Log)
	}
	accountHandler := NewAccountHandler(cfg.Accounts, cfg.Orders, cfg.RequestTimeout, cfg.Log)
	locks := newClientLocks()
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20 // 1MB
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(MaxBodyMiddleware(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ClientMiddleware(cfg.Adapter))
		r.Use(locks.Middleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{productID}", cartHandler.UpdateQuantity)
			r.Delete("/items/{productID}", cartHandler.RemoveItem)
		})

		r.Route("/account", func(r chi.Router) {
			r.Post("/register", accountHandler.Register)
			r.Post("/login", accountHandler.Login)
			r.Post("/logout", accountHandler.Logout)
			r.Get("/me", accountHandler.Me)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.Checkout)
			r.Post("/validate", checkoutHandler.Validate)
			r.Get("/pending", checkoutHandler.Pending)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Delete("/", ordersHandler.ClearHistory)
			r.Get("/last", ordersHandler.LastOrder)
			r.Get("/{orderID}", ordersHandler.GetOrder)
			r.Post("/{orderID}/cancel", ordersHandler.Cancel)
			r.Post("/{orderID}/advance", ordersHandler.Advance)
		})
	})

	return r
}
