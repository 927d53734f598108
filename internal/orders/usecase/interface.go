// Package usecase defines the interfaces and implementations for order
// management use cases. The order use case is where the transactional outbox
// contract lives: every state change writes the order row and its event
// record in one transaction.
package usecase

import (
	"context"

	"github.com/google/uuid"

	validation "github.com/jellydator/validation"

	ordersDomain "github.com/allisson/orders/internal/orders/domain"
	outboxDomain "github.com/allisson/orders/internal/outbox/domain"
)

// Config holds the order business rule settings.
type Config struct {
	// MinAmount is the smallest accepted order total in cents.
	MinAmount int64
	// MaxAmount is the largest accepted order total in cents.
	MaxAmount int64
	// MaxItems is the largest accepted line item count.
	MaxItems int
	// MaxOpenPerUser limits how many open orders a user may hold.
	MaxOpenPerUser int
	// OutboxMaxRetries is stamped on outbox records written by this use case.
	OutboxMaxRetries int
}

// CreateOrderCommand contains the parameters for placing an order.
type CreateOrderCommand struct {
	UserID      uuid.UUID
	TotalAmount int64
	Currency    string
	ItemCount   int
	// RequestID is propagated into the outbox record headers for correlation.
	RequestID string
}

// Validate checks the command against the configured limits.
func (c *CreateOrderCommand) Validate(config Config) error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.TotalAmount,
			validation.Required,
			validation.Min(config.MinAmount),
			validation.Max(config.MaxAmount),
		),
		validation.Field(&c.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&c.ItemCount,
			validation.Required,
			validation.Min(1),
			validation.Max(config.MaxItems),
		),
	)
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	Create(ctx context.Context, order *ordersDomain.Order) error
	Get(ctx context.Context, id uuid.UUID) (*ordersDomain.Order, error)
	Update(ctx context.Context, order *ordersDomain.Order) error
	CountOpenByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// OutboxRepository defines the outbox operations the order use case needs.
type OutboxRepository interface {
	Create(ctx context.Context, record *outboxDomain.OutboxRecord) error
}

// OrderUseCase defines the interface for order management business logic.
type OrderUseCase interface {
	// Create places a new order and writes its order.created event atomically.
	Create(ctx context.Context, cmd CreateOrderCommand) (*ordersDomain.Order, error)
	// Cancel cancels an order and writes its order.canceled event atomically.
	Cancel(ctx context.Context, orderID uuid.UUID, requestID string) (*ordersDomain.Order, error)
	// Get retrieves an order by id.
	Get(ctx context.Context, orderID uuid.UUID) (*ordersDomain.Order, error)
}
