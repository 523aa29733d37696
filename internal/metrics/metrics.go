// Package metrics exposes Prometheus counters for the storefront. Each
// Metrics owns its registry so tests and multiple servers do not clash.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal tracks total HTTP requests
	RequestsTotal *prometheus.CounterVec
	// RequestDuration tracks HTTP request duration
	RequestDuration *prometheus.HistogramVec

	CartMutations     *prometheus.CounterVec
	OrdersPlaced      *prometheus.CounterVec
	OrderTransitions  *prometheus.CounterVec
	StorageRecoveries *prometheus.CounterVec
	// BreakerState is 0=closed, 1=half-open, 2=open
	BreakerState *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CartMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_mutations_total",
				Help: "Cart mutations by operation",
			},
			[]string{"op"},
		),
		OrdersPlaced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_placed_total",
				Help: "Orders placed by payment method",
			},
			[]string{"payment_method"},
		),
		OrderTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_status_transitions_total",
				Help: "Order status changes",
			},
			[]string{"from", "to"},
		),
		StorageRecoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_corrupt_records_total",
				Help: "Corrupt records discarded on load",
			},
			[]string{"scope", "key"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "storage_breaker_state",
				Help: "Storage circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CartMutated(op string) {
	m.CartMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) OrderPlaced(method domain.PaymentMethod) {
	m.OrdersPlaced.WithLabelValues(string(method)).Inc()
}

func (m *Metrics) OrderTransitioned(from, to domain.OrderStatus) {
	m.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// StorageCorrupted matches storage.Options.OnCorrupt.
func (m *Metrics) StorageCorrupted(scope storage.Scope, key string) {
	m.StorageRecoveries.WithLabelValues(scope.String(), key).Inc()
}

// BreakerStateChanged matches storage.BreakerConfig.OnStateChange.
func (m *Metrics) BreakerStateChanged(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
