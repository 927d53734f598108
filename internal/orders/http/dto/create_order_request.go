// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/orders/internal/validation"
)

// CreateOrderRequest contains the parameters for placing an order.
type CreateOrderRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	TotalAmount int64  `json:"total_amount" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	ItemCount   int    `json:"item_count" binding:"required"`
}

// Validate checks if the create order request is well formed. Amount and
// item limits are enforced by the use case against the configured bounds.
func (r *CreateOrderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserID, validation.Required, validation.Length(36, 36)),
		validation.Field(&r.TotalAmount, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Currency, validation.Required, customValidation.CurrencyCode),
		validation.Field(&r.ItemCount, validation.Required, validation.Min(1)),
	)
}
