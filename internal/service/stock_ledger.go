package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockMirror receives the committed ledger quantity of an option
type StockMirror interface {
	SetStock(ctx context.Context, optionID int64, quantity int) error
}

// StockLedger reserves and restores option quantities inside the caller's transaction
type StockLedger struct {
	mirror StockMirror
	logger *zap.Logger
}

// NewStockLedger creates a new stock ledger. mirror may be nil.
func NewStockLedger(mirror StockMirror) *StockLedger {
	return &StockLedger{
		mirror: mirror,
		logger: util.GetLogger(),
	}
}

// Reserve locks the option's entry and decrements it by quantity
func (l *StockLedger) Reserve(ctx context.Context, repo store.Repository, optionID int64, quantity int) (*models.StockEntry, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Reserve")
	defer span.End()
	span.SetAttributes(attribute.Int64("stock.option_id", optionID), attribute.Int("stock.quantity", quantity))

	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity <= 0 {
		return nil, fmt.Errorf("reserve quantity for option %d must be positive, got %d", optionID, quantity)
	}

	entry, err := repo.LockStock(ctx, optionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.StockReservationsFailed.WithLabelValues("missing_entry").Inc()
			return nil, apperr.InsufficientStock(optionID, quantity, 0)
		}
		util.StockReservationsFailed.WithLabelValues("error").Inc()
		return nil, err
	}

	if entry.Quantity < quantity {
		util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		l.logger.Warn("Insufficient stock",
			zap.Int64("option_id", optionID),
			zap.Int("requested", quantity),
			zap.Int("available", entry.Quantity))
		return nil, apperr.InsufficientStock(optionID, quantity, entry.Quantity)
	}

	entry.Quantity -= quantity
	if err := repo.UpdateStockQuantity(ctx, optionID, entry.Quantity); err != nil {
		util.StockReservationsFailed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to reserve stock for option %d: %w", optionID, err)
	}

	return entry, nil
}

// Restore locks the option's entry and increments it by quantity
func (l *StockLedger) Restore(ctx context.Context, repo store.Repository, optionID int64, quantity int) (*models.StockEntry, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Restore")
	defer span.End()
	span.SetAttributes(attribute.Int64("stock.option_id", optionID), attribute.Int("stock.quantity", quantity))

	entry, err := repo.LockStock(ctx, optionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock for option %d: %w", optionID, err)
	}

	entry.Quantity += quantity
	if err := repo.UpdateStockQuantity(ctx, optionID, entry.Quantity); err != nil {
		return nil, fmt.Errorf("failed to restore stock for option %d: %w", optionID, err)
	}

	return entry, nil
}

// Mirror pushes committed quantities to the read-side cache. Failures are logged only.
func (l *StockLedger) Mirror(ctx context.Context, entries []models.StockEntry) {
	if l.mirror == nil {
		return
	}
	for _, entry := range entries {
		if err := l.mirror.SetStock(ctx, entry.OptionID, entry.Quantity); err != nil {
			l.logger.Warn("Failed to mirror stock",
				zap.Int64("option_id", entry.OptionID),
				zap.Error(err))
		}
	}
}

// SyncMirror copies every ledger entry into the mirror
func (l *StockLedger) SyncMirror(ctx context.Context, reader store.Reader) error {
	if l.mirror == nil {
		return nil
	}

	l.logger.Info("Starting stock mirror sync")

	entries, err := reader.ListStock(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stock: %w", err)
	}

	l.Mirror(ctx, entries)

	l.logger.Info("Stock mirror sync completed", zap.Int("count", len(entries)))
	return nil
}
