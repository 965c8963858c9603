package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles the order side of a settlement
type OrderService struct {
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService() *OrderService {
	return &OrderService{logger: util.GetLogger()}
}

// ConfirmRequest represents a request to settle an order
type ConfirmRequest struct {
	UserID         int64           `json:"-"`
	OrderNo        string          `json:"order_no" binding:"required"`
	Provider       string          `json:"provider" binding:"required"`
	SettlementType string          `json:"settlement_type,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentKey     string          `json:"payment_key" binding:"required"`
	IdempotencyKey string          `json:"-"`
}

// ConfirmResponse represents a finalized settlement
type ConfirmResponse struct {
	PaymentID   int64           `json:"payment_id"`
	OrderID     int64           `json:"order_id"`
	OrderNo     string          `json:"order_no"`
	Status      string          `json:"status"`
	Provider    string          `json:"provider"`
	Amount      decimal.Decimal `json:"amount"`
	GatewayTxID string          `json:"gateway_tx_id"`
	Method      string          `json:"method,omitempty"`
}

// LoadForSettlement fetches and validates the order a request wants to settle.
// The returned lines are sorted by option so locks are always taken in the same order.
func (s *OrderService) LoadForSettlement(ctx context.Context, repo store.Repository, req *ConfirmRequest) (*models.Order, []models.OrderItem, error) {
	order, err := repo.GetOrderByOrderNo(ctx, req.OrderNo)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, apperr.Wrap(apperr.CodeOrderNotFound, err, fmt.Sprintf("order %s not found", req.OrderNo))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order.UserID != req.UserID {
		return nil, nil, apperr.Newf(apperr.CodeOrderAccessDenied, "order %s belongs to another user", req.OrderNo)
	}

	if order.Status != models.OrderStatusPending {
		return nil, nil, apperr.Newf(apperr.CodeInvalidOrderStatus,
			"order %s is %s, expected %s", order.OrderNo, order.Status, models.OrderStatusPending)
	}

	if !req.Amount.Equal(order.TotalAmount) {
		return nil, nil, apperr.Newf(apperr.CodeInvalidAmount,
			"claimed amount %s does not match order total %s", req.Amount, order.TotalAmount)
	}

	items, err := repo.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get order items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil, apperr.Newf(apperr.CodeInvalidOrderStatus, "order %s has no lines", order.OrderNo)
	}
	if total := models.LinesTotal(items); !total.Equal(order.TotalAmount) {
		return nil, nil, apperr.Newf(apperr.CodeInvalidAmount,
			"order %s lines total %s does not match order total %s", order.OrderNo, total, order.TotalAmount)
	}

	return order, sortedLines(items), nil
}

// Complete marks the order COMPLETED and settleable
func (s *OrderService) Complete(ctx context.Context, repo store.Repository, order *models.Order) error {
	if err := order.Complete(); err != nil {
		return err
	}
	if err := repo.UpdateOrderSettlement(ctx, order.ID, order.Status, order.IsSettleable); err != nil {
		return fmt.Errorf("failed to complete order: %w", err)
	}
	return nil
}

// Rollback returns the order to PENDING and clears the settleable flag
func (s *OrderService) Rollback(ctx context.Context, repo store.Repository, order *models.Order) error {
	order.Rollback()
	if err := repo.UpdateOrderSettlement(ctx, order.ID, order.Status, order.IsSettleable); err != nil {
		return fmt.Errorf("failed to roll back order: %w", err)
	}
	return nil
}

// ClearCart deletes the user's cart lines for the purchased options
func (s *OrderService) ClearCart(ctx context.Context, repo store.Repository, userID int64, items []models.OrderItem) error {
	optionIDs := make([]int64, 0, len(items))
	for _, item := range items {
		optionIDs = append(optionIDs, item.OptionID)
	}

	deleted, err := repo.DeleteCartItems(ctx, userID, optionIDs)
	if err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}

	s.logger.Debug("Cart cleared", zap.Int64("user_id", userID), zap.Int64("deleted", deleted))
	return nil
}

// sortedLines returns a copy of items ordered by option ID
func sortedLines(items []models.OrderItem) []models.OrderItem {
	lines := append([]models.OrderItem(nil), items...)
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].OptionID < lines[j].OptionID
	})
	return lines
}
