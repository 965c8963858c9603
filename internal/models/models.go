package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a customer's intent to buy a fixed set of option lines
type Order struct {
	ID           int64           `db:"id" json:"id"`
	OrderNo      string          `db:"order_no" json:"order_no"`
	UserID       int64           `db:"user_id" json:"user_id"`
	Status       string          `db:"status" json:"status"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"total_amount"`
	IsSettleable bool            `db:"is_settleable" json:"is_settleable"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one (option, quantity, price) line of an order
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	OptionID  int64           `db:"option_id" json:"option_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// StockEntry is the ledger row holding the sellable quantity of one option
type StockEntry struct {
	OptionID  int64     `db:"option_id" json:"option_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is a user's cart line for an option
type CartItem struct {
	ID       int64 `db:"id" json:"id"`
	UserID   int64 `db:"user_id" json:"user_id"`
	OptionID int64 `db:"option_id" json:"option_id"`
	Quantity int   `db:"quantity" json:"quantity"`
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
)

// Payment statuses
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusApproved = "APPROVED"
	PaymentStatusFailed   = "FAILED"
)

// Payment log event kinds
const (
	PaymentEventCreated             = "CREATED"
	PaymentEventApproved            = "APPROVED"
	PaymentEventFailed              = "FAILED"
	PaymentEventRequiresManualCheck = "REQUIRES_MANUAL_CHECK"
)

// Gateway providers
const (
	ProviderToss  = "TOSS"
	ProviderKakao = "KAKAO"
)

// Settlement types
const (
	SettlementTypeNormal  = "NORMAL"
	SettlementTypeBilling = "BILLING"
)

// DefaultCurrency is the only currency the gateways are configured for.
const DefaultCurrency = "KRW"
