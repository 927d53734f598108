package dto

import (
	"time"

	ordersDomain "github.com/allisson/orders/internal/orders/domain"
)

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MapOrderToResponse converts a domain order to an API response.
func MapOrderToResponse(order *ordersDomain.Order) OrderResponse {
	return OrderResponse{
		ID:          order.ID.String(),
		UserID:      order.UserID.String(),
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		ItemCount:   order.ItemCount,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
