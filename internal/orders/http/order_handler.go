// Package http provides HTTP handlers for order management operations.
// Mutating endpoints require an Idempotency-Key header; retried requests
// replay the cached response instead of executing twice.
package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/orders/internal/httputil"
	idempotencyUseCase "github.com/allisson/orders/internal/idempotency/usecase"
	ordersDomain "github.com/allisson/orders/internal/orders/domain"
	"github.com/allisson/orders/internal/orders/http/dto"
	ordersUseCase "github.com/allisson/orders/internal/orders/usecase"
	customValidation "github.com/allisson/orders/internal/validation"
)

// IdempotencyKeyHeader is the request header carrying the client's key.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyReplayHeader marks responses served from the idempotency cache.
const IdempotencyReplayHeader = "Idempotency-Replay"

// OrderHandler handles HTTP requests for order management operations.
type OrderHandler struct {
	orderUseCase ordersUseCase.OrderUseCase
	guard        idempotencyUseCase.Guard
	logger       *slog.Logger
}

// NewOrderHandler creates a new order handler with required dependencies.
func NewOrderHandler(
	orderUseCase ordersUseCase.OrderUseCase,
	guard idempotencyUseCase.Guard,
	logger *slog.Logger,
) *OrderHandler {
	return &OrderHandler{
		orderUseCase: orderUseCase,
		guard:        guard,
		logger:       logger,
	}
}

// CreateHandler places a new order.
// POST /v1/orders - Requires an Idempotency-Key header.
// Returns 201 Created on first execution, 200 OK with Idempotency-Replay: true
// when the same key replays a cached response.
func (h *OrderHandler) CreateHandler(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	var req dto.CreateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid user_id: %w", err), h.logger)
		return
	}

	cmd := ordersUseCase.CreateOrderCommand{
		UserID:      userID,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		ItemCount:   req.ItemCount,
		RequestID:   requestid.Get(c),
	}

	h.executeGuarded(c, key, requestHash("create-order", body), http.StatusCreated,
		func(ctx context.Context) (*idempotencyUseCase.Result, error) {
			order, err := h.orderUseCase.Create(ctx, cmd)
			if err != nil {
				return nil, err
			}
			return commandResult(order)
		},
	)
}

// CancelHandler cancels an order.
// POST /v1/orders/:id/cancel - Requires an Idempotency-Key header.
// Returns 200 OK; replays behave like CreateHandler.
func (h *OrderHandler) CancelHandler(c *gin.Context) {
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid order id: %w", err), h.logger)
		return
	}

	requestID := requestid.Get(c)

	h.executeGuarded(c, key, requestHash("cancel-order", []byte(orderID.String())), http.StatusOK,
		func(ctx context.Context) (*idempotencyUseCase.Result, error) {
			order, err := h.orderUseCase.Cancel(ctx, orderID, requestID)
			if err != nil {
				return nil, err
			}
			return commandResult(order)
		},
	)
}

// GetHandler retrieves an order by id.
// GET /v1/orders/:id
func (h *OrderHandler) GetHandler(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid order id: %w", err), h.logger)
		return
	}

	order, err := h.orderUseCase.Get(c.Request.Context(), orderID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapOrderToResponse(order))
}

// executeGuarded runs the command under the idempotency guard and writes the
// response, cached or fresh. Replays answer 200 regardless of the first
// execution's status code.
func (h *OrderHandler) executeGuarded(
	c *gin.Context,
	key, hash string,
	successStatus int,
	fn idempotencyUseCase.CommandFunc,
) {
	result, replayed, err := h.guard.Execute(c.Request.Context(), key, hash, fn)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status := successStatus
	if replayed {
		status = http.StatusOK
		c.Header(IdempotencyReplayHeader, "true")
	}

	c.Data(status, "application/json; charset=utf-8", result.ResponseBody)
}

// idempotencyKey extracts and validates the Idempotency-Key header.
func (h *OrderHandler) idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(IdempotencyKeyHeader)
	if key == "" {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("%s header is required", IdempotencyKeyHeader),
			h.logger,
		)
		return "", false
	}

	if err := validation.Validate(key, customValidation.IdempotencyKeyFormat); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return "", false
	}

	return key, true
}

// commandResult packages an order into the guard's cacheable result.
func commandResult(order *ordersDomain.Order) (*idempotencyUseCase.Result, error) {
	responseBody, err := json.Marshal(dto.MapOrderToResponse(order))
	if err != nil {
		return nil, err
	}

	return &idempotencyUseCase.Result{
		AggregateID:  order.ID,
		ResponseBody: responseBody,
	}, nil
}

// requestHash fingerprints a request so key reuse with a different payload
// or against a different endpoint is detected as a conflict.
func requestHash(scope string, body []byte) string {
	sum := sha256.Sum256(append([]byte(scope+":"), body...))
	return hex.EncodeToString(sum[:])
}
