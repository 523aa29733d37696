// Package order turns carts into orders and manages their status afterwards.
package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/stonehub/internal/cart"
	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/events"
	"github.com/fjod/stonehub/internal/identity"
	"github.com/fjod/stonehub/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	minDeliveryDays = 7
	maxDeliveryDays = 10
)

// Store is the part of storage.Store the order engine uses.
type Store interface {
	cart.Store
	Save(ctx context.Context, scope storage.Scope, key string, value any) error
	Remove(ctx context.Context, scope storage.Scope, key string) error
}

type Recorder interface {
	OrderPlaced(method domain.PaymentMethod)
	OrderTransitioned(from, to domain.OrderStatus)
}

type nopRecorder struct{}

func (nopRecorder) OrderPlaced(domain.PaymentMethod)                         {}
func (nopRecorder) OrderTransitioned(domain.OrderStatus, domain.OrderStatus) {}

type Option func(*Service)

func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Service) { s.newID = gen }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDeliveryDays replaces the random 7 to 10 day delivery estimate.
func WithDeliveryDays(days func() int) Option {
	return func(s *Service) { s.deliveryDays = days }
}

type Service struct {
	carts        *cart.Service
	validator    *CheckoutValidator
	publisher    events.Publisher
	recorder     Recorder
	log          *zap.Logger
	newID        IDGenerator
	now          func() time.Time
	deliveryDays func() int
	reads        singleflight.Group
}

func NewService(carts *cart.Service, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		carts:        carts,
		publisher:    events.NopPublisher{},
		recorder:     nopRecorder{},
		log:          log,
		newID:        TimestampID,
		now:          time.Now,
		deliveryDays: randomDeliveryDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewCheckoutValidator(func() time.Time { return s.now() })
	return s
}

func randomDeliveryDays() int {
	return minDeliveryDays + rand.IntN(maxDeliveryDays-minDeliveryDays+1)
}

func (s *Service) Validate(in CheckoutInput) error {
	return s.validator.Validate(in.trimmed())
}

// PlaceOrder converts the cart into a pending order and stores it. Nothing
// is written when the cart is empty or the input is invalid. Once the
// order is stored the cart is cleared, the order is kept in the session for
// the confirmation page and order.placed is published; failures in those
// steps are logged and do not fail the order.
func (s *Service) PlaceOrder(ctx context.Context, st Store, c domain.Cart, in CheckoutInput, user *domain.User) (domain.Order, error) {
	if c.IsEmpty() {
		return domain.Order{}, domain.ErrEmptyCart
	}
	in = in.trimmed()
	if err := s.validator.Validate(in); err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	userID, userEmail := identity.ResolveOwner(user, now)
	snapshot := c.Clone()
	totals := cart.ComputeTotals(snapshot.Items)

	order := domain.Order{
		ID:                s.newID(now),
		UserID:            userID,
		UserEmail:         userEmail,
		Items:             snapshot.Items,
		Subtotal:          totals.Subtotal,
		Shipping:          totals.Shipping,
		Total:             totals.Total,
		ShippingInfo:      in.ShippingInfo,
		PaymentMethod:     in.PaymentMethod,
		Status:            domain.OrderStatusPending,
		OrderDate:         now,
		EstimatedDelivery: now.AddDate(0, 0, s.deliveryDays()),
	}

	var orders []domain.Order
	err := st.Update(ctx, storage.Durable, storage.KeyOrders, &orders, func(bool) error {
		orders = upsert(orders, order)
		return nil
	})
	if err != nil {
		s.log.Error("failed to store order",
			zap.String("order_id", order.ID),
			zap.String("client_id", st.ClientID()),
			zap.Error(err),
		)
		return domain.Order{}, fmt.Errorf("place order: %w", err)
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.Stringer("total", order.Total),
	)
	s.recorder.OrderPlaced(order.PaymentMethod)

	if _, err := s.carts.Clear(ctx, st); err != nil {
		s.log.Warn("failed to clear cart after order", zap.String("order_id", order.ID), zap.Error(err))
	}
	if err := st.Save(ctx, storage.Session, storage.KeyLastOrder, order); err != nil {
		s.log.Warn("failed to store last order", zap.String("order_id", order.ID), zap.Error(err))
	}
	if err := st.Remove(ctx, storage.Session, storage.KeyProceedToCheckout); err != nil {
		s.log.Warn("failed to reset checkout flag", zap.Error(err))
	}
	s.publish(ctx, events.OrderPlaced, order)

	return order.Clone(), nil
}

// upsert replaces the order with the same id or appends it.
func upsert(orders []domain.Order, order domain.Order) []domain.Order {
	if i := indexOf(orders, order.ID); i >= 0 {
		orders[i] = order
		return orders
	}
	return append(orders, order)
}

func (s *Service) GetOrder(ctx context.Context, st Store, orderID string) (domain.Order, error) {
	orders, err := s.loadOrders(ctx, st)
	if err != nil {
		return domain.Order{}, err
	}
	if i := indexOf(orders, orderID); i >= 0 {
		return orders[i].Clone(), nil
	}
	return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
}

// LastOrder serves the confirmation page. The order kept in the session is
// used when it matches orderID (or when no id is given); otherwise the
// order is looked up by id.
func (s *Service) LastOrder(ctx context.Context, st Store, orderID string) (domain.Order, error) {
	var last domain.Order
	found, err := st.Load(ctx, storage.Session, storage.KeyLastOrder, &last)
	if err != nil {
		return domain.Order{}, err
	}
	if found && (orderID == "" || last.ID == orderID) {
		return last, nil
	}
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("last order: %w", domain.ErrOrderNotFound)
	}
	return s.GetOrder(ctx, st, orderID)
}

// ListOrdersForUser returns the user's orders newest first.
func (s *Service) ListOrdersForUser(ctx context.Context, st Store, user domain.User) ([]domain.Order, error) {
	orders, err := s.loadOrders(ctx, st)
	if err != nil {
		return nil, err
	}
	return identity.OrdersForUser(orders, user), nil
}

// ClearHistory removes every stored order of the client and the session's
// last order.
func (s *Service) ClearHistory(ctx context.Context, st Store) error {
	if err := st.Remove(ctx, storage.Durable, storage.KeyOrders); err != nil {
		return fmt.Errorf("clear order history: %w", err)
	}
	if err := st.Remove(ctx, storage.Session, storage.KeyLastOrder); err != nil {
		return fmt.Errorf("clear last order: %w", err)
	}
	s.log.Info("order history cleared", zap.String("client_id", st.ClientID()))
	return nil
}

// DeferCheckout remembers that an anonymous visitor was sent to log in
// before checking out.
func (s *Service) DeferCheckout(ctx context.Context, st Store) error {
	return st.Save(ctx, storage.Session, storage.KeyProceedToCheckout, true)
}

func (s *Service) CheckoutPending(ctx context.Context, st Store) (bool, error) {
	var pending bool
	if _, err := st.Load(ctx, storage.Session, storage.KeyProceedToCheckout, &pending); err != nil {
		return false, err
	}
	return pending, nil
}

// loadOrders reads the client's order collection. Concurrent reads for the
// same client share one storage round trip, so callers must not modify the
// returned slice. The shared read is not cancelled when the caller that
// started it goes away; each caller still stops waiting on its own ctx.
func (s *Service) loadOrders(ctx context.Context, st Store) ([]domain.Order, error) {
	ch := s.reads.DoChan(st.ClientID(), func() (any, error) {
		readCtx, cancel := sharedContext(ctx)
		defer cancel()

		var orders []domain.Order
		if _, err := st.Load(readCtx, storage.Durable, storage.KeyOrders, &orders); err != nil {
			return nil, fmt.Errorf("load orders: %w", err)
		}
		return orders, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Order), nil
	}
}

// sharedContext detaches ctx from its cancellation but keeps its deadline.
func sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	shared := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(shared, deadline)
	}
	return shared, func() {}
}

func (s *Service) publish(ctx context.Context, name string, order domain.Order) {
	err := s.publisher.Publish(ctx, events.NewOrderEvent(name, order, s.now()))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("failed to publish order event",
			zap.String("event", name),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}
