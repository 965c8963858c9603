package service

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"go.uber.org/zap"
)

// DefaultManualCheckLimit caps the manual check listing when no limit is given
const DefaultManualCheckLimit = 100

// PaymentService serves settlement records and their audit trail
type PaymentService struct {
	reader store.Reader
	logger *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(reader store.Reader) *PaymentService {
	return &PaymentService{
		reader: reader,
		logger: util.GetLogger(),
	}
}

// PaymentDetail is a payment together with its log entries
type PaymentDetail struct {
	Payment *models.Payment     `json:"payment"`
	Logs    []models.PaymentLog `json:"logs"`
}

// GetPayment retrieves a payment and its audit trail
func (ps *PaymentService) GetPayment(ctx context.Context, paymentID int64) (*PaymentDetail, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetPayment")
	defer span.End()

	payment, err := ps.reader.GetPaymentByID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.CodePaymentNotFound, err, fmt.Sprintf("payment %d not found", paymentID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	logs, err := ps.reader.GetPaymentLogs(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment logs: %w", err)
	}

	return &PaymentDetail{Payment: payment, Logs: nonNilLogs(logs)}, nil
}

// GetPaymentsByOrderNo retrieves every settlement attempt of an order
func (ps *PaymentService) GetPaymentsByOrderNo(ctx context.Context, orderNo string) ([]models.Payment, error) {
	payments, err := ps.reader.GetPaymentsByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}

// ListManualChecks retrieves the latest REQUIRES_MANUAL_CHECK entries for reconciliation
func (ps *PaymentService) ListManualChecks(ctx context.Context, limit int) ([]models.PaymentLog, error) {
	if limit <= 0 || limit > DefaultManualCheckLimit {
		limit = DefaultManualCheckLimit
	}

	logs, err := ps.reader.GetPaymentLogsByEventType(ctx, models.PaymentEventRequiresManualCheck, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get manual checks: %w", err)
	}

	ps.logger.Debug("Listed manual checks", zap.Int("count", len(logs)))
	return nonNilLogs(logs), nil
}

func nonNilLogs(logs []models.PaymentLog) []models.PaymentLog {
	if logs == nil {
		return []models.PaymentLog{}
	}
	return logs
}
