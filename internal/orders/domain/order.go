// Package domain defines the core domain models and events for order
// management. Orders are the aggregate whose state changes are announced
// through outbox events; every mutation goes through the order use case.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	// OrderStatusCreated is the initial state of a newly placed order.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusPaid means payment was captured for the order.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCanceled is terminal; canceled orders never change again.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order represents a customer order.
type Order struct {
	// ID is the unique identifier of the order.
	ID uuid.UUID
	// UserID identifies the customer who placed the order.
	UserID uuid.UUID
	// Status is the current lifecycle state.
	Status OrderStatus
	// TotalAmount is the order total in minor currency units (cents).
	TotalAmount int64
	// Currency is the ISO 4217 currency code.
	Currency string
	// ItemCount is the number of line items.
	ItemCount int
	// CreatedAt is the UTC timestamp when the order was placed.
	CreatedAt time.Time
	// UpdatedAt is the UTC timestamp of the last state change.
	UpdatedAt time.Time
}

// NewOrder creates a new order in the created state.
func NewOrder(userID uuid.UUID, totalAmount int64, currency string, itemCount int) *Order {
	now := time.Now().UTC()

	return &Order{
		ID:          uuid.Must(uuid.NewV7()),
		UserID:      userID,
		Status:      OrderStatusCreated,
		TotalAmount: totalAmount,
		Currency:    currency,
		ItemCount:   itemCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Open reports whether the order still counts against the per-user open
// order limit.
func (o *Order) Open() bool {
	return o.Status == OrderStatusCreated
}

// Cancel transitions the order to canceled. Canceling an already canceled
// order is a business rule violation.
func (o *Order) Cancel(now time.Time) error {
	if o.Status == OrderStatusCanceled {
		return ErrOrderAlreadyCanceled
	}

	o.Status = OrderStatusCanceled
	o.UpdatedAt = now

	return nil
}
