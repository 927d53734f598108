package service

import (
	"fmt"

	apperrors "github.com/allisson/orders/internal/errors"
)

// StaticRouter resolves event types to broker destinations through a fixed
// lookup table. The table is the single place where routing lives, so adding
// a destination for a new event type is a one line change.
type StaticRouter struct {
	routes map[string]string
}

// DefaultRoutes returns the routing table for the order event stream.
func DefaultRoutes() map[string]string {
	return map[string]string{
		"order.created":  "orders.order-events",
		"order.canceled": "orders.order-events",
	}
}

// NewStaticRouter creates a router from the given table. Entries override the
// defaults for the same event type.
func NewStaticRouter(routes map[string]string) *StaticRouter {
	merged := DefaultRoutes()
	for eventType, destination := range routes {
		merged[eventType] = destination
	}

	return &StaticRouter{routes: merged}
}

// Route returns the destination for the event type. Unknown event types are
// an input error: the record will never become routable, so it is retried to
// its ceiling and parked for operator inspection.
func (r *StaticRouter) Route(eventType string) (string, error) {
	destination, ok := r.routes[eventType]
	if !ok {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput,
			fmt.Sprintf("no destination configured for event type %q", eventType))
	}

	return destination, nil
}
