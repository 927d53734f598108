// Package domain defines core domain models and errors for idempotency keys.
package domain

import (
	"github.com/allisson/orders/internal/errors"
)

// Idempotency-specific error definitions.
var (
	// ErrKeyNotFound indicates no claim exists for the given key.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "idempotency key not found")

	// ErrConflictingKey indicates the key was reused with a different request body.
	ErrConflictingKey = errors.Wrap(errors.ErrConflict, "idempotency key reused with different request")

	// ErrKeyInFlight indicates another request holding the same key is still executing.
	ErrKeyInFlight = errors.Wrap(errors.ErrInFlight, "idempotency key claimed by an in-flight request")
)
