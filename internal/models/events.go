package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSettlementRequested   = "SETTLEMENT_REQUESTED"
	EventTypeSettlementApproved    = "SETTLEMENT_APPROVED"
	EventTypeSettlementFailed      = "SETTLEMENT_FAILED"
	EventTypeSettlementManualCheck = "SETTLEMENT_MANUAL_CHECK_REQUIRED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SettlementRequestedEvent carries an asynchronous confirm request
type SettlementRequestedEvent struct {
	BaseEvent
	UserID         int64           `json:"user_id"`
	OrderNo        string          `json:"order_no"`
	Provider       string          `json:"provider"`
	SettlementType string          `json:"settlement_type"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentKey     string          `json:"payment_key"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// SettlementApprovedEvent is consumed by the settlement batch
type SettlementApprovedEvent struct {
	BaseEvent
	PaymentID   int64           `json:"payment_id"`
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Provider    string          `json:"provider"`
	GatewayTxID string          `json:"gateway_tx_id"`
}

// SettlementFailedEvent published after compensation completed
type SettlementFailedEvent struct {
	BaseEvent
	PaymentID int64  `json:"payment_id"`
	OrderID   int64  `json:"order_id"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

// SettlementManualCheckEvent alerts operators to a payment needing reconciliation
type SettlementManualCheckEvent struct {
	BaseEvent
	PaymentID   int64  `json:"payment_id"`
	OrderID     int64  `json:"order_id"`
	UserID      int64  `json:"user_id"`
	GatewayTxID string `json:"gateway_tx_id,omitempty"`
	Reason      string `json:"reason"`
}
