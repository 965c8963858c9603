package service

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementService owns payment state transitions and their audit trail.
// Every method runs inside the caller's transaction.
type SettlementService struct {
	logger *zap.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService() *SettlementService {
	return &SettlementService{logger: util.GetLogger()}
}

// Create persists a PENDING payment with its CREATED log entry
func (s *SettlementService) Create(ctx context.Context, repo store.Repository, orderID int64, amount decimal.Decimal, provider string, userID int64) (*models.Payment, error) {
	payment, err := models.NewPayment(orderID, amount, provider, userID)
	if err != nil {
		return nil, err
	}

	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	entry := models.NewPaymentLog(payment.ID, models.PaymentEventCreated,
		fmt.Sprintf("payment created, amount %s %s via %s", amount, payment.Currency, provider), userID)
	if err := repo.AppendPaymentLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append payment log: %w", err)
	}

	s.logger.Info("Payment created",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", orderID),
		zap.String("provider", provider))
	return payment, nil
}

// Approve records the gateway's confirmation on a PENDING payment
func (s *SettlementService) Approve(ctx context.Context, repo store.Repository, paymentID int64, result *gateway.Result, userID int64) (*models.Payment, error) {
	payment, err := s.load(ctx, repo, paymentID)
	if err != nil {
		return nil, err
	}

	if err := payment.Approve(result.GatewayTxID, result.ApprovedAt, result.Method); err != nil {
		return nil, err
	}

	if err := repo.UpdatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	entry := models.NewPaymentLog(payment.ID, models.PaymentEventApproved, models.ApprovedMessage(result.GatewayTxID), userID)
	if err := repo.AppendPaymentLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append payment log: %w", err)
	}

	return payment, nil
}

// MarkFailed moves a PENDING payment to FAILED and logs the reason
func (s *SettlementService) MarkFailed(ctx context.Context, repo store.Repository, paymentID int64, reason string, userID int64) error {
	payment, err := s.load(ctx, repo, paymentID)
	if err != nil {
		return err
	}

	if err := payment.Fail(reason); err != nil {
		return err
	}

	if err := repo.UpdatePayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	entry := models.NewPaymentLog(payment.ID, models.PaymentEventFailed, reason, userID)
	if err := repo.AppendPaymentLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to append payment log: %w", err)
	}
	return nil
}

// MarkRequiresManualCheck appends a REQUIRES_MANUAL_CHECK entry. The payment
// status is left untouched since the gateway's real outcome is not known here.
func (s *SettlementService) MarkRequiresManualCheck(ctx context.Context, repo store.Repository, paymentID int64, reason string, userID int64) error {
	if _, err := s.load(ctx, repo, paymentID); err != nil {
		return err
	}

	entry := models.NewPaymentLog(paymentID, models.PaymentEventRequiresManualCheck, reason, userID)
	if err := repo.AppendPaymentLog(ctx, entry); err != nil {
		return fmt.Errorf("failed to append payment log: %w", err)
	}

	s.logger.Error("Payment requires manual check",
		zap.Int64("payment_id", paymentID),
		zap.String("reason", reason))
	return nil
}

func (s *SettlementService) load(ctx context.Context, repo store.Repository, paymentID int64) (*models.Payment, error) {
	payment, err := repo.GetPaymentByID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.CodePaymentNotFound, err, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}
