package worker

import (
	"context"

	"settlement-service/internal/apperr"
	"settlement-service/internal/broker"
	"settlement-service/internal/models"
	"settlement-service/internal/service"
	"settlement-service/internal/util"

	"go.uber.org/zap"
)

// Settler runs one settlement attempt
type Settler interface {
	ConfirmPayment(ctx context.Context, req *service.ConfirmRequest) (*service.ConfirmResponse, error)
}

// SettlementWorker runs queued settlement requests
type SettlementWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	settler      Settler
	logger       *zap.Logger
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(consumer *broker.Consumer, settler Settler) *SettlementWorker {
	w := &SettlementWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		settler:      settler,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnSettlementRequested(w.HandleSettlementRequested)
	return w
}

// Start starts the worker
func (w *SettlementWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting settlement worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SettlementWorker) Stop() error {
	w.logger.Info("Stopping settlement worker")
	return w.consumer.Close()
}

// HandleSettlementRequested runs the saga for a queued request. Business
// outcomes are reported through settlement events, so only internal errors
// leave the message uncommitted.
func (w *SettlementWorker) HandleSettlementRequested(ctx context.Context, event *models.SettlementRequestedEvent) error {
	req := &service.ConfirmRequest{
		UserID:         event.UserID,
		OrderNo:        event.OrderNo,
		Provider:       event.Provider,
		SettlementType: event.SettlementType,
		Amount:         event.Amount,
		PaymentKey:     event.PaymentKey,
		IdempotencyKey: event.IdempotencyKey,
	}

	resp, err := w.settler.ConfirmPayment(ctx, req)
	if err != nil {
		code := apperr.CodeOf(err)
		w.logger.Warn("Queued settlement did not complete",
			zap.String("event_id", event.EventID),
			zap.String("order_no", event.OrderNo),
			zap.String("code", string(code)),
			zap.Error(err))
		if code == apperr.CodeInternal {
			return err
		}
		return nil
	}

	w.logger.Info("Queued settlement approved",
		zap.String("event_id", event.EventID),
		zap.String("order_no", event.OrderNo),
		zap.Int64("payment_id", resp.PaymentID))
	return nil
}
