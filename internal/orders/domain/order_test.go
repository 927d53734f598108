package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/orders/internal/errors"
)

func TestNewOrder(t *testing.T) {
	userID := uuid.Must(uuid.NewV7())

	order := NewOrder(userID, 12500, "USD", 3)

	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, OrderStatusCreated, order.Status)
	assert.Equal(t, int64(12500), order.TotalAmount)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, 3, order.ItemCount)
	assert.Equal(t, order.CreatedAt, order.UpdatedAt)
	assert.True(t, order.Open())
}

func TestOrder_Cancel(t *testing.T) {
	t.Run("cancels a created order", func(t *testing.T) {
		order := NewOrder(uuid.Must(uuid.NewV7()), 12500, "USD", 3)
		now := time.Now().UTC().Add(time.Minute)

		err := order.Cancel(now)

		require.NoError(t, err)
		assert.Equal(t, OrderStatusCanceled, order.Status)
		assert.Equal(t, now, order.UpdatedAt)
		assert.False(t, order.Open())
	})

	t.Run("cancels a paid order", func(t *testing.T) {
		order := NewOrder(uuid.Must(uuid.NewV7()), 12500, "USD", 3)
		order.Status = OrderStatusPaid

		err := order.Cancel(time.Now().UTC())

		require.NoError(t, err)
		assert.Equal(t, OrderStatusCanceled, order.Status)
	})

	t.Run("rejects a second cancel", func(t *testing.T) {
		order := NewOrder(uuid.Must(uuid.NewV7()), 12500, "USD", 3)
		require.NoError(t, order.Cancel(time.Now().UTC()))

		err := order.Cancel(time.Now().UTC())

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrBusinessRule))
	})
}

func TestNewOrderCreatedEvent(t *testing.T) {
	order := NewOrder(uuid.Must(uuid.NewV7()), 12500, "USD", 3)

	payload, err := NewOrderCreatedEvent(order)
	require.NoError(t, err)

	var event OrderCreatedEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, order.UserID, event.UserID)
	assert.Equal(t, int64(12500), event.TotalAmount)
	assert.Equal(t, "USD", event.Currency)
	assert.Equal(t, 3, event.ItemCount)
}

func TestNewOrderCanceledEvent(t *testing.T) {
	order := NewOrder(uuid.Must(uuid.NewV7()), 12500, "USD", 3)
	require.NoError(t, order.Cancel(time.Now().UTC()))

	payload, err := NewOrderCanceledEvent(order)
	require.NoError(t, err)

	var event OrderCanceledEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, order.UserID, event.UserID)
	assert.True(t, event.CanceledAt.Equal(order.UpdatedAt))
}
