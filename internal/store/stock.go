package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// LockStock selects the ledger row FOR UPDATE
func (r *queries) LockStock(ctx context.Context, optionID int64) (*models.StockEntry, error) {
	var entry models.StockEntry
	err := sqlx.GetContext(ctx, r.q, &entry,
		"SELECT option_id, quantity, updated_at FROM stock_ledger WHERE option_id = $1 FOR UPDATE", optionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stock entry %d: %w", optionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock entry: %w", err)
	}
	return &entry, nil
}

// UpdateStockQuantity overwrites the quantity of a locked ledger row
func (r *queries) UpdateStockQuantity(ctx context.Context, optionID int64, quantity int) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE stock_ledger SET quantity = $1, updated_at = NOW() WHERE option_id = $2",
		quantity, optionID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return expectOneRow(res, "stock entry", optionID)
}

func (r *queries) getStock(ctx context.Context, optionID int64) (*models.StockEntry, error) {
	var entry models.StockEntry
	err := sqlx.GetContext(ctx, r.q, &entry,
		"SELECT option_id, quantity, updated_at FROM stock_ledger WHERE option_id = $1", optionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stock entry %d: %w", optionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queries) listStock(ctx context.Context) ([]models.StockEntry, error) {
	var entries []models.StockEntry
	err := sqlx.SelectContext(ctx, r.q, &entries,
		"SELECT option_id, quantity, updated_at FROM stock_ledger ORDER BY option_id")
	return entries, err
}
