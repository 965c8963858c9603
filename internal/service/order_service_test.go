package service

import (
	"context"
	"testing"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedLines(t *testing.T) {
	items := []models.OrderItem{
		{OptionID: 3, Quantity: 1},
		{OptionID: 1, Quantity: 2},
		{OptionID: 2, Quantity: 1},
	}

	lines := sortedLines(items)

	assert.Equal(t, []int64{1, 2, 3}, []int64{lines[0].OptionID, lines[1].OptionID, lines[2].OptionID})
	assert.Equal(t, int64(3), items[0].OptionID)
}

func TestLinesTotal(t *testing.T) {
	items := []models.OrderItem{
		{OptionID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(1000)},
		{OptionID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(500)},
	}

	assert.True(t, decimal.NewFromInt(2500).Equal(models.LinesTotal(items)))
}

func TestLoadForSettlementRejectsCompletedOrder(t *testing.T) {
	s := store.NewMemoryStore()
	s.SeedOrder(models.Order{OrderNo: "ORD-1", UserID: 1, Status: models.OrderStatusCompleted, TotalAmount: decimal.NewFromInt(100)},
		[]models.OrderItem{{OptionID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(100)}})

	svc := NewOrderService()
	err := s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		_, _, err := svc.LoadForSettlement(ctx, repo, &ConfirmRequest{UserID: 1, OrderNo: "ORD-1", Amount: decimal.NewFromInt(100)})
		return err
	})

	assert.Equal(t, apperr.CodeInvalidOrderStatus, apperr.CodeOf(err))
}

func TestLoadForSettlementRejectsLinesNotMatchingTotal(t *testing.T) {
	s := store.NewMemoryStore()
	s.SeedStock(1, 10)
	s.SeedOrder(models.Order{OrderNo: "ORD-1", UserID: 1, TotalAmount: decimal.NewFromInt(100)},
		[]models.OrderItem{{OptionID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(100)}})

	svc := NewOrderService()
	err := s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		_, _, err := svc.LoadForSettlement(ctx, repo, &ConfirmRequest{UserID: 1, OrderNo: "ORD-1", Amount: decimal.NewFromInt(100)})
		return err
	})

	assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "lines total 200")
}

func TestCompleteAndRollbackOrder(t *testing.T) {
	s := store.NewMemoryStore()
	seeded := s.SeedOrder(models.Order{OrderNo: "ORD-1", UserID: 1, TotalAmount: decimal.NewFromInt(100)}, nil)

	svc := NewOrderService()
	err := s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		order := *seeded
		require.NoError(t, svc.Complete(ctx, repo, &order))
		assert.Equal(t, apperr.CodeInvalidOrderStatus, apperr.CodeOf(order.Complete()))
		return nil
	})
	require.NoError(t, err)

	stored, err := s.GetOrder(seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)
	assert.True(t, stored.IsSettleable)

	err = s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		return svc.Rollback(ctx, repo, stored)
	})
	require.NoError(t, err)

	stored, err = s.GetOrder(seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.False(t, stored.IsSettleable)
}
