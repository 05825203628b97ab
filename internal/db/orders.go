package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/errs"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

const orderColumns = "id, wallet, kind, side, remaining, price, status, created_at"

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(&order.ID, &order.Wallet, &order.Kind, &order.Side,
		&order.Remaining, &order.Price, &order.Status, &order.CreatedAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// InsertOrder persists a new order inside the caller's transaction. The
// creation timestamp is server-assigned and written back to the order.
func (db *DB) InsertOrder(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, wallet, kind, side, remaining, price, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		order.ID, order.Wallet, order.Kind, order.Side, order.Remaining, order.Price, order.Status).
		Scan(&order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrder reads an order outside any transaction.
func (db *DB) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := scanOrder(db.Pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err == pgx.ErrNoRows {
		return nil, &errs.OrderNotFoundError{OrderID: orderID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetOrderForUpdate reads an order with a row lock inside the caller's
// transaction, so concurrent matchers and cancellers serialize on it.
func (db *DB) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID))
	if err == pgx.ErrNoRows {
		return nil, &errs.OrderNotFoundError{OrderID: orderID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// UpdateOrderRemaining writes an order's remaining quantity and status.
// Remaining and status are the only mutable order fields.
func (db *DB) UpdateOrderRemaining(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, remaining int64, status models.OrderStatus) error {
	tag, err := tx.Exec(ctx,
		"UPDATE orders SET remaining = $1, status = $2 WHERE id = $3",
		remaining, status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &errs.OrderNotFoundError{OrderID: orderID.String()}
	}
	return nil
}

// CompatibleRestingOrders returns active opposite-side orders a new order at
// the given price could fill, in price-time priority, row-locked for the
// duration of the transaction. For an incoming buy that is sells priced at
// or below the bid, cheapest first; for an incoming sell, buys priced at or
// above the ask, highest first. Ties break on earliest creation.
func (db *DB) CompatibleRestingOrders(ctx context.Context, tx pgx.Tx, kind models.ResourceKind, incoming models.Side, price int64) ([]models.Order, error) {
	var query string
	if incoming == models.SideBuy {
		query = `SELECT ` + orderColumns + ` FROM orders
			 WHERE kind = $1 AND side = 'sell' AND status = 'active' AND price <= $2
			 ORDER BY price ASC, created_at ASC FOR UPDATE`
	} else {
		query = `SELECT ` + orderColumns + ` FROM orders
			 WHERE kind = $1 AND side = 'buy' AND status = 'active' AND price >= $2
			 ORDER BY price DESC, created_at ASC FOR UPDATE`
	}

	rows, err := tx.Query(ctx, query, kind, price)
	if err != nil {
		return nil, fmt.Errorf("failed to get resting orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.Wallet, &order.Kind, &order.Side,
			&order.Remaining, &order.Price, &order.Status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
