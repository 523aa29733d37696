package order

import (
	"context"
	"fmt"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/events"
	"github.com/fjod/stonehub/internal/storage"
	"go.uber.org/zap"
)

// Cancel moves a pending or processing order to cancelled.
func (s *Service) Cancel(ctx context.Context, st Store, orderID string) (domain.Order, error) {
	return s.transition(ctx, st, orderID, domain.OrderStatusCancelled)
}

// Advance applies one forward step (pending to processing, processing to
// shipped, shipped to delivered). Fulfilment happens outside this service;
// Advance is how it reports progress.
func (s *Service) Advance(ctx context.Context, st Store, orderID string, to domain.OrderStatus) (domain.Order, error) {
	if to == domain.OrderStatusCancelled || !to.Valid() {
		return domain.Order{}, fmt.Errorf("advance order %s to %q: %w", orderID, to, domain.ErrInvalidTransition)
	}
	return s.transition(ctx, st, orderID, to)
}

func (s *Service) transition(ctx context.Context, st Store, orderID string, to domain.OrderStatus) (domain.Order, error) {
	var (
		orders  []domain.Order
		updated domain.Order
		from    domain.OrderStatus
	)
	err := st.Update(ctx, storage.Durable, storage.KeyOrders, &orders, func(bool) error {
		i := indexOf(orders, orderID)
		if i < 0 {
			return fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
		}
		from = orders[i].Status
		if !from.CanTransitionTo(to) {
			return fmt.Errorf("order %s from %s to %s: %w", orderID, from, to, domain.ErrInvalidTransition)
		}
		orders[i].Status = to
		updated = orders[i].Clone()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order status changed",
		zap.String("order_id", orderID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	s.recorder.OrderTransitioned(from, to)
	s.refreshLastOrder(ctx, st, updated)

	event := events.OrderStatusChanged
	if to == domain.OrderStatusCancelled {
		event = events.OrderCancelled
	}
	s.publish(ctx, event, updated)

	return updated, nil
}

// refreshLastOrder keeps the confirmation copy in the session in step with
// the stored order.
func (s *Service) refreshLastOrder(ctx context.Context, st Store, order domain.Order) {
	var last domain.Order
	found, err := st.Load(ctx, storage.Session, storage.KeyLastOrder, &last)
	if err != nil || !found || last.ID != order.ID {
		return
	}
	if err := st.Save(ctx, storage.Session, storage.KeyLastOrder, order); err != nil {
		s.log.Warn("failed to refresh last order", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func indexOf(orders []domain.Order, orderID string) int {
	for i := range orders {
		if orders[i].ID == orderID {
			return i
		}
	}
	return -1
}
