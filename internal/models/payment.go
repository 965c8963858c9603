package models

import (
	"fmt"
	"strings"
	"time"

	"settlement-service/internal/apperr"

	"github.com/shopspring/decimal"
)

// Payment is the durable record of one settlement attempt for an order.
// It is never deleted; its history lives in PaymentLog entries.
type Payment struct {
	ID            int64           `db:"id" json:"id"`
	OrderID       int64           `db:"order_id" json:"order_id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Currency      string          `db:"currency" json:"currency"`
	Provider      string          `db:"provider" json:"provider"`
	Status        string          `db:"status" json:"status"`
	GatewayTxID   *string         `db:"gateway_tx_id" json:"gateway_tx_id,omitempty"`
	Method        *string         `db:"method" json:"method,omitempty"`
	ApprovedAt    *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	FailureReason *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentLog is one append-only audit entry of a payment's state transitions
type PaymentLog struct {
	ID        int64     `db:"id" json:"id"`
	PaymentID int64     `db:"payment_id" json:"payment_id"`
	EventType string    `db:"event_type" json:"event_type"`
	Message   string    `db:"message" json:"message"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewPayment builds a PENDING payment. Amount must be positive.
func NewPayment(orderID int64, amount decimal.Decimal, provider string, userID int64) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, apperr.Newf(apperr.CodeInvalidAmount, "payment amount must be positive, got %s", amount)
	}
	return &Payment{
		OrderID:  orderID,
		UserID:   userID,
		Amount:   amount,
		Currency: DefaultCurrency,
		Provider: provider,
		Status:   PaymentStatusPending,
	}, nil
}

// Approve moves a PENDING payment to APPROVED. An empty gateway transaction id
// is rejected before any field changes.
func (p *Payment) Approve(gatewayTxID string, approvedAt time.Time, method string) error {
	if strings.TrimSpace(gatewayTxID) == "" {
		return apperr.New(apperr.CodeInvalidGatewayTransactionID)
	}
	if err := p.transitionTo(PaymentStatusApproved); err != nil {
		return err
	}
	p.GatewayTxID = &gatewayTxID
	p.ApprovedAt = &approvedAt
	if method != "" {
		p.Method = &method
	}
	return nil
}

// Fail moves a PENDING payment to FAILED.
func (p *Payment) Fail(reason string) error {
	if err := p.transitionTo(PaymentStatusFailed); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// IsApproved reports whether the payment is APPROVED with a gateway transaction id.
func (p *Payment) IsApproved() bool {
	return p.Status == PaymentStatusApproved && p.GatewayTxID != nil && *p.GatewayTxID != ""
}

func (p *Payment) transitionTo(next string) error {
	if p.Status != PaymentStatusPending {
		return apperr.Newf(apperr.CodeInvalidPaymentStatus,
			"payment %d cannot move from %s to %s", p.ID, p.Status, next)
	}
	p.Status = next
	return nil
}

// NewPaymentLog builds an audit entry for paymentID.
func NewPaymentLog(paymentID int64, eventType, message string, userID int64) *PaymentLog {
	return &PaymentLog{
		PaymentID: paymentID,
		EventType: eventType,
		Message:   message,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

// ApprovedMessage is the audit message recorded on approval.
func ApprovedMessage(gatewayTxID string) string {
	return fmt.Sprintf("payment approved, gateway tx id: %s", gatewayTxID)
}
