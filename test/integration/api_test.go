// Package integration provides end-to-end tests for the order management API
// against a real PostgreSQL database: HTTP handlers, idempotency guard, and
// transactional outbox writes working together.
package integration

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/orders/internal/database"
	internalHTTP "github.com/allisson/orders/internal/http"
	idempotencyRepository "github.com/allisson/orders/internal/idempotency/repository"
	idempotencyUsecase "github.com/allisson/orders/internal/idempotency/usecase"
	ordersHTTP "github.com/allisson/orders/internal/orders/http"
	ordersRepository "github.com/allisson/orders/internal/orders/repository"
	ordersUsecase "github.com/allisson/orders/internal/orders/usecase"
	outboxRepository "github.com/allisson/orders/internal/outbox/repository"
	"github.com/allisson/orders/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type apiTestContext struct {
	db     *sql.DB
	router http.Handler
}

// setupAPITest wires the real handler stack against a migrated test database.
// The outbox dispatcher is not started: records are asserted at rest.
func setupAPITest(t *testing.T) *apiTestContext {
	t.Helper()

	testutil.SkipIfNoPostgres(t)

	db := testutil.SetupPostgresDB(t)
	t.Cleanup(func() {
		testutil.CleanupPostgresDB(t, db)
		testutil.TeardownDB(t, db)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	txManager := database.NewTxManager(db)

	orderRepo := ordersRepository.NewPostgreSQLOrderRepository(db)
	outboxRepo := outboxRepository.NewPostgreSQLOutboxRepository(db)
	keyRepo := idempotencyRepository.NewPostgreSQLIdempotencyRepository(db)

	guard := idempotencyUsecase.NewGuard(idempotencyUsecase.Config{
		TTL:             24 * time.Hour,
		InFlightTimeout: time.Minute,
	}, txManager, keyRepo, logger)

	orderUseCase := ordersUsecase.NewOrderUseCase(ordersUsecase.Config{
		MinAmount:        100,
		MaxAmount:        10_000_000,
		MaxItems:         100,
		MaxOpenPerUser:   10,
		OutboxMaxRetries: 5,
	}, txManager, orderRepo, outboxRepo, logger)

	handler := ordersHTTP.NewOrderHandler(orderUseCase, guard, logger)

	server := internalHTTP.NewServer(db, "localhost", 0, logger)
	server.SetupRouter(handler)

	return &apiTestContext{db: db, router: server.GetHandler()}
}

func (tc *apiTestContext) createOrder(t *testing.T, idempotencyKey string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	w := httptest.NewRecorder()
	tc.router.ServeHTTP(w, req)
	return w
}

func (tc *apiTestContext) cancelOrder(t *testing.T, idempotencyKey, orderID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/orders/%s/cancel", orderID), nil)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	w := httptest.NewRecorder()
	tc.router.ServeHTTP(w, req)
	return w
}

func (tc *apiTestContext) countOutboxRecords(t *testing.T, eventType string) int {
	t.Helper()

	var count int
	err := tc.db.QueryRow(
		"SELECT COUNT(*) FROM outbox_records WHERE event_type = $1", eventType,
	).Scan(&count)
	require.NoError(t, err)
	return count
}

func validOrderBody() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      uuid.Must(uuid.NewV7()).String(),
		"total_amount": 12500,
		"currency":     "USD",
		"item_count":   3,
	}
}

func TestCreateOrder_WritesOrderAndOutboxRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := setupAPITest(t)

	w := tc.createOrder(t, "create-1", validOrderBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "created", response["status"])

	assert.Equal(t, 1, tc.countOutboxRecords(t, "order.created"))
}

func TestCreateOrder_ReplaySameKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := setupAPITest(t)
	body := validOrderBody()

	first := tc.createOrder(t, "replay-1", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := tc.createOrder(t, "replay-1", body)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotency-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	// The command ran once: one order row, one outbox record.
	var orderCount int
	require.NoError(t, tc.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&orderCount))
	assert.Equal(t, 1, orderCount)
	assert.Equal(t, 1, tc.countOutboxRecords(t, "order.created"))
}

func TestCreateOrder_SameKeyDifferentPayloadConflicts(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := setupAPITest(t)

	first := tc.createOrder(t, "conflict-1", validOrderBody())
	require.Equal(t, http.StatusCreated, first.Code)

	second := tc.createOrder(t, "conflict-1", validOrderBody())
	require.Equal(t, http.StatusConflict, second.Code, second.Body.String())
}

func TestCreateOrder_MissingIdempotencyKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := setupAPITest(t)

	payload, err := json.Marshal(validOrderBody())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	tc.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCancelOrder_FullFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := setupAPITest(t)

	created := tc.createOrder(t, "cancel-flow-1", validOrderBody())
	require.Equal(t, http.StatusCreated, created.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &response))
	orderID := response["id"].(string)

	canceled := tc.cancelOrder(t, "cancel-flow-2", orderID)
	require.Equal(t, http.StatusOK, canceled.Code, canceled.Body.String())

	var canceledResponse map[string]interface{}
	require.NoError(t, json.Unmarshal(canceled.Body.Bytes(), &canceledResponse))
	assert.Equal(t, "canceled", canceledResponse["status"])

	assert.Equal(t, 1, tc.countOutboxRecords(t, "order.canceled"))

	// Canceling again under a new key violates the business rule.
	again := tc.cancelOrder(t, "cancel-flow-3", orderID)
	assert.Equal(t, http.StatusUnprocessableEntity, again.Code, again.Body.String())
}

func TestGetOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := setupAPITest(t)

	created := tc.createOrder(t, "get-1", validOrderBody())
	require.Equal(t, http.StatusCreated, created.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &response))
	orderID := response["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/"+orderID, nil)
	w := httptest.NewRecorder()
	tc.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, created.Body.String(), w.Body.String())
}

func TestGetOrder_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := setupAPITest(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/"+uuid.Must(uuid.NewV7()).String(), nil)
	w := httptest.NewRecorder()
	tc.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
