package events

import (
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	OrderPlaced        = "order.placed"
	OrderCancelled     = "order.cancelled"
	OrderStatusChanged = "order.status_changed"
)

// OrderEvent is the payload written to the orders topic.
type OrderEvent struct {
	Event      string             `json:"event"`
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id"`
	Status     domain.OrderStatus `json:"status"`
	Total      decimal.Decimal    `json:"total"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func NewOrderEvent(name string, order domain.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Event:      name,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Total:      order.Total,
		OccurredAt: at.UTC(),
	}
}
