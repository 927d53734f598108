package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type names as they appear on outbox records and in the routing table.
const (
	EventTypeOrderCreated  = "order.created"
	EventTypeOrderCanceled = "order.canceled"
)

// AggregateType is the aggregate type name stamped on outbox records.
const AggregateType = "order"

// OrderCreatedEvent is the payload published when an order is placed.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrderCanceledEvent is the payload published when an order is canceled.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

// NewOrderCreatedEvent builds the order.created payload from an order.
func NewOrderCreatedEvent(order *Order) ([]byte, error) {
	return json.Marshal(OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		ItemCount:   order.ItemCount,
		CreatedAt:   order.CreatedAt,
	})
}

// NewOrderCanceledEvent builds the order.canceled payload from an order.
func NewOrderCanceledEvent(order *Order) ([]byte, error) {
	return json.Marshal(OrderCanceledEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		CanceledAt: order.UpdatedAt,
	})
}
