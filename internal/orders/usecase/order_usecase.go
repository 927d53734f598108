package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/database"
	ordersDomain "github.com/allisson/orders/internal/orders/domain"
	outboxDomain "github.com/allisson/orders/internal/outbox/domain"
	customValidation "github.com/allisson/orders/internal/validation"
)

// orderUseCase implements the OrderUseCase interface.
type orderUseCase struct {
	config     Config
	txManager  database.TxManager
	orderRepo  OrderRepository
	outboxRepo OutboxRepository
	logger     *slog.Logger
}

// NewOrderUseCase creates a new OrderUseCase.
func NewOrderUseCase(
	config Config,
	txManager database.TxManager,
	orderRepo OrderRepository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
) OrderUseCase {
	return &orderUseCase{
		config:     config,
		txManager:  txManager,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Create validates the command, enforces the open order limit, and writes the
// order row together with its order.created outbox record in one transaction.
func (o *orderUseCase) Create(ctx context.Context, cmd CreateOrderCommand) (*ordersDomain.Order, error) {
	if err := cmd.Validate(o.config); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	// The ceiling is advisory: the count and the insert below are not
	// serialized, so concurrent creates under different idempotency keys can
	// briefly exceed MaxOpenPerUser. Enforcing it strictly would need a
	// per-user lock spanning both statements.
	openCount, err := o.orderRepo.CountOpenByUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if openCount >= int64(o.config.MaxOpenPerUser) {
		return nil, ordersDomain.ErrTooManyOpenOrders
	}

	order := ordersDomain.NewOrder(cmd.UserID, cmd.TotalAmount, cmd.Currency, cmd.ItemCount)

	payload, err := ordersDomain.NewOrderCreatedEvent(order)
	if err != nil {
		return nil, err
	}

	err = o.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := o.orderRepo.Create(txCtx, order); err != nil {
			return err
		}

		record := outboxDomain.NewOutboxRecord(
			ordersDomain.AggregateType,
			order.ID,
			ordersDomain.EventTypeOrderCreated,
			payload,
			eventHeaders(cmd.RequestID),
			o.config.OutboxMaxRetries,
		)

		return o.outboxRepo.Create(txCtx, record)
	})
	if err != nil {
		return nil, err
	}

	if o.logger != nil {
		o.logger.Info("order created",
			slog.String("order_id", order.ID.String()),
			slog.String("user_id", order.UserID.String()),
			slog.Int64("total_amount", order.TotalAmount),
		)
	}

	return order, nil
}

// Cancel transitions the order to canceled and writes its order.canceled
// outbox record in the same transaction.
func (o *orderUseCase) Cancel(
	ctx context.Context,
	orderID uuid.UUID,
	requestID string,
) (*ordersDomain.Order, error) {
	var order *ordersDomain.Order

	err := o.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = o.orderRepo.Get(txCtx, orderID)
		if err != nil {
			return err
		}

		if err := order.Cancel(time.Now().UTC()); err != nil {
			return err
		}

		if err := o.orderRepo.Update(txCtx, order); err != nil {
			return err
		}

		payload, err := ordersDomain.NewOrderCanceledEvent(order)
		if err != nil {
			return err
		}

		record := outboxDomain.NewOutboxRecord(
			ordersDomain.AggregateType,
			order.ID,
			ordersDomain.EventTypeOrderCanceled,
			payload,
			eventHeaders(requestID),
			o.config.OutboxMaxRetries,
		)

		return o.outboxRepo.Create(txCtx, record)
	})
	if err != nil {
		return nil, err
	}

	if o.logger != nil {
		o.logger.Info("order canceled", slog.String("order_id", order.ID.String()))
	}

	return order, nil
}

// Get retrieves an order by id.
func (o *orderUseCase) Get(ctx context.Context, orderID uuid.UUID) (*ordersDomain.Order, error) {
	return o.orderRepo.Get(ctx, orderID)
}

// eventHeaders builds the outbox headers carried to the broker.
func eventHeaders(requestID string) map[string]string {
	if requestID == "" {
		return nil
	}
	return map[string]string{"request_id": requestID}
}
