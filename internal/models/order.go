package models

import (
	"settlement-service/internal/apperr"

	"github.com/shopspring/decimal"
)

// Complete marks a PENDING order as finalized and awaiting money capture.
func (o *Order) Complete() error {
	if o.Status != OrderStatusPending {
		return apperr.Newf(apperr.CodeInvalidOrderStatus,
			"order %s is %s, expected %s", o.OrderNo, o.Status, OrderStatusPending)
	}
	o.Status = OrderStatusCompleted
	o.IsSettleable = true
	return nil
}

// Rollback reverts a COMPLETED order to PENDING and clears the settleable flag.
func (o *Order) Rollback() {
	if o.Status == OrderStatusCompleted {
		o.Status = OrderStatusPending
	}
	o.IsSettleable = false
}

// LinesTotal sums quantity * unit price over items.
func LinesTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
