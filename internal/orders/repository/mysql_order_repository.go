package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/database"
	"github.com/allisson/orders/internal/orders/domain"
)

// MySQLOrderRepository handles order persistence for MySQL.
type MySQLOrderRepository struct {
	db *sql.DB
}

// NewMySQLOrderRepository creates a new MySQLOrderRepository.
func NewMySQLOrderRepository(db *sql.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{
		db: db,
	}
}

// Create inserts a new order within the caller's transaction when one is
// present in the context.
func (r *MySQLOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO orders (id, user_id, status, total_amount, currency, item_count, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, order.ID.String(), order.UserID.String(), order.Status,
		order.TotalAmount, order.Currency, order.ItemCount, order.CreatedAt, order.UpdatedAt)

	return err
}

// Get retrieves an order by id.
func (r *MySQLOrderRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, user_id, status, total_amount, currency, item_count, created_at, updated_at
			  FROM orders
			  WHERE id = ?`

	order, err := scanOrder(querier.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return order, nil
}

// Update persists the current order state.
func (r *MySQLOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE orders
			  SET status = ?, total_amount = ?, currency = ?, item_count = ?, updated_at = ?
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, order.Status, order.TotalAmount, order.Currency,
		order.ItemCount, order.UpdatedAt, order.ID.String())

	return err
}

// CountOpenByUser counts the user's orders still in the created state.
func (r *MySQLOrderRepository) CountOpenByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM orders WHERE user_id = ? AND status = ?`

	var count int64
	err := querier.QueryRowContext(ctx, query, userID.String(), domain.OrderStatusCreated).Scan(&count)

	return count, err
}
