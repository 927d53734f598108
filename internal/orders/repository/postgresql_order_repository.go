// Package repository provides data persistence implementations for orders.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/database"
	"github.com/allisson/orders/internal/orders/domain"
)

// PostgreSQLOrderRepository handles order persistence for PostgreSQL.
type PostgreSQLOrderRepository struct {
	db *sql.DB
}

// NewPostgreSQLOrderRepository creates a new PostgreSQLOrderRepository.
func NewPostgreSQLOrderRepository(db *sql.DB) *PostgreSQLOrderRepository {
	return &PostgreSQLOrderRepository{
		db: db,
	}
}

// Create inserts a new order. It participates in the caller's transaction
// when one is present in the context.
func (r *PostgreSQLOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO orders (id, user_id, status, total_amount, currency, item_count, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(ctx, query, order.ID, order.UserID, order.Status,
		order.TotalAmount, order.Currency, order.ItemCount, order.CreatedAt, order.UpdatedAt)

	return err
}

// Get retrieves an order by id.
func (r *PostgreSQLOrderRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, user_id, status, total_amount, currency, item_count, created_at, updated_at
			  FROM orders
			  WHERE id = $1`

	order, err := scanOrder(querier.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return order, nil
}

// Update persists the current order state.
func (r *PostgreSQLOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE orders
			  SET status = $1, total_amount = $2, currency = $3, item_count = $4, updated_at = $5
			  WHERE id = $6`

	_, err := querier.ExecContext(ctx, query, order.Status, order.TotalAmount, order.Currency,
		order.ItemCount, order.UpdatedAt, order.ID)

	return err
}

// CountOpenByUser counts the user's orders still in the created state. Used
// to enforce the per-user open order limit.
func (r *PostgreSQLOrderRepository) CountOpenByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $2`

	var count int64
	err := querier.QueryRowContext(ctx, query, userID, domain.OrderStatusCreated).Scan(&count)

	return count, err
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order

	err := row.Scan(&order.ID, &order.UserID, &order.Status, &order.TotalAmount,
		&order.Currency, &order.ItemCount, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &order, nil
}
