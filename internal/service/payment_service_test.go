package service

import (
	"context"
	"testing"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPayment(t *testing.T, s *store.MemoryStore, orderNo string) *models.Payment {
	t.Helper()

	order := s.SeedOrder(models.Order{OrderNo: orderNo, UserID: 1, TotalAmount: decimal.NewFromInt(100)}, nil)
	settlements := NewSettlementService()

	var payment *models.Payment
	err := s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		var err error
		payment, err = settlements.Create(ctx, repo, order.ID, decimal.NewFromInt(100), models.ProviderToss, 1)
		return err
	})
	require.NoError(t, err)
	return payment
}

func TestSettlementServiceApproveRecordsTransaction(t *testing.T) {
	s := store.NewMemoryStore()
	payment := seedPayment(t, s, "ORD-1")
	settlements := NewSettlementService()

	err := s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		approved, err := settlements.Approve(ctx, repo, payment.ID, &gateway.Result{
			GatewayTxID: "tx-1",
			Amount:      decimal.NewFromInt(100),
			ApprovedAt:  time.Now(),
			Method:      "CARD",
		}, 1)
		require.NoError(t, err)
		assert.True(t, approved.IsApproved())
		return nil
	})
	require.NoError(t, err)

	stored, err := s.GetPaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", *stored.GatewayTxID)
	assert.Equal(t, "CARD", *stored.Method)
}

func TestSettlementServiceApproveTwiceFails(t *testing.T) {
	s := store.NewMemoryStore()
	payment := seedPayment(t, s, "ORD-1")
	settlements := NewSettlementService()
	result := &gateway.Result{GatewayTxID: "tx-1", Amount: decimal.NewFromInt(100), ApprovedAt: time.Now()}

	approve := func() error {
		return s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
			_, err := settlements.Approve(ctx, repo, payment.ID, result, 1)
			return err
		})
	}

	require.NoError(t, approve())
	assert.Equal(t, apperr.CodeInvalidPaymentStatus, apperr.CodeOf(approve()))
}

func TestSettlementServiceMarkUnknownPayment(t *testing.T) {
	s := store.NewMemoryStore()
	settlements := NewSettlementService()

	err := s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
		return settlements.MarkFailed(ctx, repo, 404, "gateway down", 1)
	})

	assert.Equal(t, apperr.CodePaymentNotFound, apperr.CodeOf(err))
}

func TestPaymentServiceGetPayment(t *testing.T) {
	s := store.NewMemoryStore()
	payment := seedPayment(t, s, "ORD-1")
	svc := NewPaymentService(s)

	detail, err := svc.GetPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, detail.Payment.ID)
	require.Len(t, detail.Logs, 1)
	assert.Equal(t, models.PaymentEventCreated, detail.Logs[0].EventType)

	_, err = svc.GetPayment(context.Background(), 999)
	assert.Equal(t, apperr.CodePaymentNotFound, apperr.CodeOf(err))
}

func TestPaymentServiceListManualChecks(t *testing.T) {
	s := store.NewMemoryStore()
	first := seedPayment(t, s, "ORD-1")
	second := seedPayment(t, s, "ORD-2")
	settlements := NewSettlementService()

	for _, id := range []int64{first.ID, second.ID} {
		err := s.WithinTx(context.Background(), func(ctx context.Context, repo store.Repository) error {
			return settlements.MarkRequiresManualCheck(ctx, repo, id, "empty gateway transaction id", 1)
		})
		require.NoError(t, err)
	}

	svc := NewPaymentService(s)
	logs, err := svc.ListManualChecks(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, second.ID, logs[0].PaymentID)

	stored, err := s.GetPaymentByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)

	payments, err := svc.GetPaymentsByOrderNo(context.Background(), "ORD-404")
	require.NoError(t, err)
	assert.Empty(t, payments)
}
