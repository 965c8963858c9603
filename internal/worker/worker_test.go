package worker

import (
	"context"
	"errors"
	"testing"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) ConfirmPayment(ctx context.Context, req *service.ConfirmRequest) (*service.ConfirmResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*service.ConfirmResponse)
	return resp, args.Error(1)
}

func requestedEvent() *models.SettlementRequestedEvent {
	return &models.SettlementRequestedEvent{
		BaseEvent:      models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeSettlementRequested},
		UserID:         7,
		OrderNo:        "ORD-1",
		Provider:       models.ProviderToss,
		Amount:         decimal.NewFromInt(15000),
		PaymentKey:     "pk_1",
		IdempotencyKey: "idem-1",
	}
}

func TestHandleSettlementRequestedMapsEvent(t *testing.T) {
	settler := &mockSettler{}
	settler.On("ConfirmPayment", mock.Anything, mock.MatchedBy(func(req *service.ConfirmRequest) bool {
		return req.UserID == 7 && req.OrderNo == "ORD-1" && req.IdempotencyKey == "idem-1" &&
			req.Amount.Equal(decimal.NewFromInt(15000))
	})).Return(&service.ConfirmResponse{PaymentID: 1}, nil)

	w := NewSettlementWorker(nil, settler)

	assert.NoError(t, w.HandleSettlementRequested(context.Background(), requestedEvent()))
	settler.AssertExpectations(t)
}

func TestHandleSettlementRequestedCommitsBusinessFailures(t *testing.T) {
	settler := &mockSettler{}
	settler.On("ConfirmPayment", mock.Anything, mock.Anything).
		Return(nil, apperr.New(apperr.CodeSettlementApprovalFailed))

	w := NewSettlementWorker(nil, settler)

	assert.NoError(t, w.HandleSettlementRequested(context.Background(), requestedEvent()))
}

func TestHandleSettlementRequestedKeepsInternalFailures(t *testing.T) {
	settler := &mockSettler{}
	settler.On("ConfirmPayment", mock.Anything, mock.Anything).
		Return(nil, errors.New("database unavailable"))

	w := NewSettlementWorker(nil, settler)

	assert.Error(t, w.HandleSettlementRequested(context.Background(), requestedEvent()))
}
