package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// queries implements Repository over either the pool or a transaction
type queries struct {
	q sqlx.ExtContext
}

// GetOrderByOrderNo retrieves an order by its external reference and locks
// the row when called inside a transaction
func (r *queries) GetOrderByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, r.q, &order, "SELECT * FROM orders WHERE order_no = $1 FOR UPDATE", orderNo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all lines of an order
func (r *queries) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, r.q, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY option_id", orderID)
	return items, err
}

// UpdateOrderSettlement updates order status and settleable flag
func (r *queries) UpdateOrderSettlement(ctx context.Context, orderID int64, status string, settleable bool) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, is_settleable = $2, updated_at = NOW() WHERE id = $3",
		status, settleable, orderID)
	if err != nil {
		return err
	}
	return expectOneRow(res, "order", orderID)
}

// DeleteCartItems removes the user's cart lines for the given options
func (r *queries) DeleteCartItems(ctx context.Context, userID int64, optionIDs []int64) (int64, error) {
	if len(optionIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In("DELETE FROM cart_items WHERE user_id = ? AND option_id IN (?)", userID, optionIDs)
	if err != nil {
		return 0, err
	}
	query = r.q.Rebind(query)

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func expectOneRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
