package dto_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	ordersDomain "github.com/allisson/orders/internal/orders/domain"
	"github.com/allisson/orders/internal/orders/http/dto"
)

func TestMapOrderToResponse(t *testing.T) {
	order := ordersDomain.NewOrder(uuid.Must(uuid.NewV7()), 12500, "USD", 3)

	response := dto.MapOrderToResponse(order)

	assert.Equal(t, order.ID.String(), response.ID)
	assert.Equal(t, order.UserID.String(), response.UserID)
	assert.Equal(t, "created", response.Status)
	assert.Equal(t, int64(12500), response.TotalAmount)
	assert.Equal(t, "USD", response.Currency)
	assert.Equal(t, 3, response.ItemCount)
	assert.Equal(t, order.CreatedAt, response.CreatedAt)
	assert.Equal(t, order.UpdatedAt, response.UpdatedAt)
}
