package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreatePayment inserts a payment and fills its generated fields
func (r *queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, user_id, amount, currency, provider, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	row := r.q.QueryRowxContext(ctx, query,
		payment.OrderID, payment.UserID, payment.Amount, payment.Currency, payment.Provider, payment.Status)
	return row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByID retrieves a payment by ID
func (r *queries) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, r.q, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePayment persists status and gateway fields
func (r *queries) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, gateway_tx_id = $2, method = $3, approved_at = $4, failure_reason = $5, updated_at = NOW()
		WHERE id = $6`,
		payment.Status, payment.GatewayTxID, payment.Method, payment.ApprovedAt, payment.FailureReason, payment.ID)
	if err != nil {
		return err
	}
	return expectOneRow(res, "payment", payment.ID)
}

// AppendPaymentLog inserts an audit entry. Rows are never updated or deleted.
func (r *queries) AppendPaymentLog(ctx context.Context, entry *models.PaymentLog) error {
	query := `
		INSERT INTO payment_logs (payment_id, event_type, message, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return sqlx.GetContext(ctx, r.q, &entry.ID, query,
		entry.PaymentID, entry.EventType, entry.Message, entry.UserID, entry.CreatedAt)
}

func (r *queries) getPaymentsByOrderNo(ctx context.Context, orderNo string) ([]models.Payment, error) {
	var payments []models.Payment
	err := sqlx.SelectContext(ctx, r.q, &payments, `
		SELECT p.* FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE o.order_no = $1
		ORDER BY p.id DESC`, orderNo)
	return payments, err
}

func (r *queries) getPaymentLogs(ctx context.Context, paymentID int64) ([]models.PaymentLog, error) {
	var logs []models.PaymentLog
	err := sqlx.SelectContext(ctx, r.q, &logs,
		"SELECT * FROM payment_logs WHERE payment_id = $1 ORDER BY id", paymentID)
	return logs, err
}

func (r *queries) getPaymentLogsByEventType(ctx context.Context, eventType string, limit int) ([]models.PaymentLog, error) {
	var logs []models.PaymentLog
	err := sqlx.SelectContext(ctx, r.q, &logs,
		"SELECT * FROM payment_logs WHERE event_type = $1 ORDER BY id DESC LIMIT $2", eventType, limit)
	return logs, err
}
