package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/metrics"
	ordersDomain "github.com/allisson/orders/internal/orders/domain"
)

// orderUseCaseWithMetrics decorates OrderUseCase with metrics instrumentation.
type orderUseCaseWithMetrics struct {
	next    OrderUseCase
	metrics metrics.BusinessMetrics
}

// NewOrderUseCaseWithMetrics wraps an OrderUseCase with metrics recording.
func NewOrderUseCaseWithMetrics(useCase OrderUseCase, m metrics.BusinessMetrics) OrderUseCase {
	return &orderUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Create records metrics for order creation operations.
func (o *orderUseCaseWithMetrics) Create(
	ctx context.Context,
	cmd CreateOrderCommand,
) (*ordersDomain.Order, error) {
	start := time.Now()
	order, err := o.next.Create(ctx, cmd)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "orders", "order_create", status)
	o.metrics.RecordDuration(ctx, "orders", "order_create", time.Since(start), status)

	return order, err
}

// Cancel records metrics for order cancellation operations.
func (o *orderUseCaseWithMetrics) Cancel(
	ctx context.Context,
	orderID uuid.UUID,
	requestID string,
) (*ordersDomain.Order, error) {
	start := time.Now()
	order, err := o.next.Cancel(ctx, orderID, requestID)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "orders", "order_cancel", status)
	o.metrics.RecordDuration(ctx, "orders", "order_cancel", time.Since(start), status)

	return order, err
}

// Get records metrics for order retrieval operations.
func (o *orderUseCaseWithMetrics) Get(ctx context.Context, orderID uuid.UUID) (*ordersDomain.Order, error) {
	start := time.Now()
	order, err := o.next.Get(ctx, orderID)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "orders", "order_get", status)
	o.metrics.RecordDuration(ctx, "orders", "order_get", time.Since(start), status)

	return order, err
}
