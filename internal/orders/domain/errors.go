// Package domain defines core domain models and errors for orders.
package domain

import (
	"github.com/allisson/orders/internal/errors"
)

// Order-specific error definitions.
var (
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.Wrap(errors.ErrNotFound, "order not found")

	// ErrOrderAlreadyCanceled indicates a cancel was attempted on a canceled order.
	ErrOrderAlreadyCanceled = errors.Wrap(errors.ErrBusinessRule, "order is already canceled")

	// ErrTooManyOpenOrders indicates the user reached the open order limit.
	ErrTooManyOpenOrders = errors.Wrap(errors.ErrBusinessRule, "too many open orders for user")
)
