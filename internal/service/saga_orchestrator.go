package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// compensationTimeout bounds the detached transactions that run after the gateway call.
const compensationTimeout = 10 * time.Second

// EventPublisher publishes settlement outcomes
type EventPublisher interface {
	PublishSettlementApproved(ctx context.Context, event *models.SettlementApprovedEvent) error
	PublishSettlementFailed(ctx context.Context, event *models.SettlementFailedEvent) error
	PublishSettlementManualCheck(ctx context.Context, event *models.SettlementManualCheckEvent) error
}

// RequestGuard rejects concurrent executions of the same inbound request
type RequestGuard interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// SagaOrchestrator runs one settlement attempt: reserve and create (local tx),
// gateway confirm (no tx), then finalize or escalate (local tx).
type SagaOrchestrator struct {
	tx          store.Transactor
	orders      *OrderService
	ledger      *StockLedger
	settlements *SettlementService
	registry    *gateway.Registry
	client      *gateway.Client
	events      EventPublisher
	guard       RequestGuard
	guardTTL    time.Duration
	logger      *zap.Logger
}

// NewSagaOrchestrator creates a new saga orchestrator
func NewSagaOrchestrator(
	tx store.Transactor,
	orders *OrderService,
	ledger *StockLedger,
	settlements *SettlementService,
	registry *gateway.Registry,
	client *gateway.Client,
) *SagaOrchestrator {
	return &SagaOrchestrator{
		tx:          tx,
		orders:      orders,
		ledger:      ledger,
		settlements: settlements,
		registry:    registry,
		client:      client,
		logger:      util.GetLogger(),
	}
}

// WithEvents sets the outcome publisher
func (so *SagaOrchestrator) WithEvents(events EventPublisher) *SagaOrchestrator {
	so.events = events
	return so
}

// WithGuard sets the duplicate request guard
func (so *SagaOrchestrator) WithGuard(guard RequestGuard, ttl time.Duration) *SagaOrchestrator {
	so.guard = guard
	so.guardTTL = ttl
	return so
}

// reservation is what Phase 1 committed and compensation must undo
type reservation struct {
	order   *models.Order
	items   []models.OrderItem
	payment *models.Payment
	stock   []models.StockEntry
}

// ConfirmPayment settles an order against the gateway selected for the request
func (so *SagaOrchestrator) ConfirmPayment(ctx context.Context, req *ConfirmRequest) (*ConfirmResponse, error) {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.ConfirmPayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("settlement.order_no", req.OrderNo),
		attribute.String("settlement.provider", req.Provider),
	)

	util.SettlementsStartedTotal.Inc()

	if req.SettlementType == "" {
		req.SettlementType = models.SettlementTypeNormal
	}

	if req.IdempotencyKey != "" && so.guard != nil {
		acquired, err := so.guard.AcquireLock(ctx, guardKey(req.IdempotencyKey), so.guardTTL)
		if err != nil {
			util.LoggerFor(ctx, so.logger).Warn("Request guard unavailable, continuing without it",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		} else if !acquired {
			util.SettlementsFailedTotal.WithLabelValues(reasonLabel(apperr.CodeDuplicateRequest)).Inc()
			return nil, apperr.Newf(apperr.CodeDuplicateRequest, "request %s is already in progress", req.IdempotencyKey)
		}
	}

	resp, reserved, err := so.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
		// Once stock is reserved, approved, manual-check and inconsistent
		// outcomes keep the key until it expires.
		if so.guard != nil && req.IdempotencyKey != "" && (!reserved || retryableByCaller(err)) {
			so.releaseGuard(ctx, req.IdempotencyKey)
		}
		return nil, err
	}

	span.SetStatus(codes.Ok, "settled")
	return resp, nil
}

// run reports whether Phase 1 committed alongside the outcome.
func (so *SagaOrchestrator) run(ctx context.Context, req *ConfirmRequest) (*ConfirmResponse, bool, error) {
	adapter, err := so.registry.Select(gateway.SettlementContext{
		Provider: req.Provider,
		Amount:   req.Amount,
		Type:     req.SettlementType,
	})
	if err != nil {
		util.SettlementsFailedTotal.WithLabelValues(reasonLabel(apperr.CodeOf(err))).Inc()
		return nil, false, err
	}

	res, err := so.reserve(ctx, req, adapter.Name())
	if err != nil {
		util.SettlementsFailedTotal.WithLabelValues(reasonLabel(apperr.CodeOf(err))).Inc()
		return nil, false, err
	}

	gatewayCtx, cancel := gatewayContext(ctx)
	defer cancel()

	result, err := so.client.Confirm(gatewayCtx, adapter, gateway.Request{
		OrderNo:    req.OrderNo,
		PaymentKey: req.PaymentKey,
		Amount:     req.Amount,
		Provider:   adapter.Name(),
	})
	if err != nil {
		return nil, true, so.compensate(ctx, req, res, err)
	}

	resp, err := so.finalize(ctx, req, res, result)
	return resp, true, err
}

// gatewayContext keeps the caller's deadline and drops its cancellation. After
// Phase 1 commits only the deadline may end the gateway call.
func gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithCancel(detached)
}

// reserve is Phase 1
func (so *SagaOrchestrator) reserve(ctx context.Context, req *ConfirmRequest, provider string) (*reservation, error) {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.Reserve")
	defer span.End()

	var res reservation
	err := so.tx.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		res = reservation{}

		order, items, err := so.orders.LoadForSettlement(ctx, repo, req)
		if err != nil {
			return err
		}

		for _, item := range items {
			entry, err := so.ledger.Reserve(ctx, repo, item.OptionID, item.Quantity)
			if err != nil {
				return err
			}
			res.stock = append(res.stock, *entry)
		}

		payment, err := so.settlements.Create(ctx, repo, order.ID, req.Amount, provider, req.UserID)
		if err != nil {
			return err
		}

		if err := so.orders.Complete(ctx, repo, order); err != nil {
			return err
		}

		res.order, res.items, res.payment = order, items, payment
		return nil
	})
	if err != nil {
		util.LoggerFor(ctx, so.logger).Warn("Settlement rejected before reservation",
			zap.String("order_no", req.OrderNo),
			zap.String("code", string(apperr.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	util.SettlementsReservedTotal.Inc()
	so.ledger.Mirror(ctx, res.stock)

	util.LoggerFor(ctx, so.logger).Info("Stock reserved and payment created",
		zap.String("order_no", req.OrderNo),
		zap.Int64("order_id", res.order.ID),
		zap.Int64("payment_id", res.payment.ID),
		zap.String("provider", provider))
	return &res, nil
}

// compensate reverses Phase 1 after the gateway failed and returns the error for the caller
func (so *SagaOrchestrator) compensate(ctx context.Context, req *ConfirmRequest, res *reservation, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.Compensate")
	defer span.End()

	code := apperr.CodeOf(cause)
	util.LoggerFor(ctx, so.logger).Warn("Gateway confirmation failed, compensating",
		zap.String("order_no", req.OrderNo),
		zap.Int64("payment_id", res.payment.ID),
		zap.String("code", string(code)),
		zap.Error(cause))

	var restored []models.StockEntry
	err := so.tx.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		restored = restored[:0]
		for _, item := range res.items {
			entry, err := so.ledger.Restore(ctx, repo, item.OptionID, item.Quantity)
			if err != nil {
				return err
			}
			restored = append(restored, *entry)
		}

		order := *res.order
		if err := so.orders.Rollback(ctx, repo, &order); err != nil {
			return err
		}

		return so.settlements.MarkFailed(ctx, repo, res.payment.ID, failureReason(cause), req.UserID)
	})
	if err != nil {
		util.CompensationFailuresTotal.Inc()
		util.SettlementsFailedTotal.WithLabelValues(reasonLabel(apperr.CodeInconsistentState)).Inc()
		span.RecordError(err)
		util.LoggerFor(ctx, so.logger).Error("Compensation failed, settlement left inconsistent",
			zap.String("order_no", req.OrderNo),
			zap.Int64("order_id", res.order.ID),
			zap.Int64("payment_id", res.payment.ID),
			zap.String("gateway_code", string(code)),
			zap.Error(err))
		return apperr.Wrap(apperr.CodeInconsistentState, errors.Join(cause, err),
			fmt.Sprintf("settlement for order %s failed (%s) and could not be rolled back", req.OrderNo, code))
	}

	util.SettlementsFailedTotal.WithLabelValues(reasonLabel(code)).Inc()
	so.ledger.Mirror(ctx, restored)

	so.publishFailed(ctx, res, code, failureReason(cause))

	util.LoggerFor(ctx, so.logger).Info("Compensation completed",
		zap.String("order_no", req.OrderNo),
		zap.Int64("payment_id", res.payment.ID))
	return cause
}

// finalize is Phase 3. A failure here never triggers compensation: the gateway
// has already captured the money.
func (so *SagaOrchestrator) finalize(ctx context.Context, req *ConfirmRequest, res *reservation, result *gateway.Result) (*ConfirmResponse, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.Finalize")
	defer span.End()

	var approved *models.Payment
	err := so.tx.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		payment, err := so.settlements.Approve(ctx, repo, res.payment.ID, result, req.UserID)
		if err != nil {
			return err
		}
		if err := so.orders.ClearCart(ctx, repo, req.UserID, res.items); err != nil {
			return err
		}
		approved = payment
		return nil
	})
	if err != nil {
		return nil, so.escalate(ctx, req, res, result, err)
	}

	util.SettlementsApprovedTotal.Inc()
	so.publishApproved(ctx, approved, result)

	util.LoggerFor(ctx, so.logger).Info("Settlement approved",
		zap.String("order_no", req.OrderNo),
		zap.Int64("payment_id", approved.ID),
		zap.String("gateway_tx_id", result.GatewayTxID))

	return &ConfirmResponse{
		PaymentID:   approved.ID,
		OrderID:     res.order.ID,
		OrderNo:     res.order.OrderNo,
		Status:      approved.Status,
		Provider:    approved.Provider,
		Amount:      approved.Amount,
		GatewayTxID: result.GatewayTxID,
		Method:      result.Method,
	}, nil
}

// escalate records that local finalization failed after the gateway approved
func (so *SagaOrchestrator) escalate(ctx context.Context, req *ConfirmRequest, res *reservation, result *gateway.Result, cause error) error {
	util.SettlementsManualCheckTotal.Inc()

	reason := fmt.Sprintf("gateway approved (tx id %q) but local finalization failed: %v", result.GatewayTxID, cause)

	err := so.tx.WithinTx(ctx, func(ctx context.Context, repo store.Repository) error {
		return so.settlements.MarkRequiresManualCheck(ctx, repo, res.payment.ID, reason, req.UserID)
	})
	if err != nil {
		util.LoggerFor(ctx, so.logger).Error("Failed to record manual check",
			zap.Int64("payment_id", res.payment.ID),
			zap.Error(err))
		cause = errors.Join(cause, err)
	}

	so.publishManualCheck(ctx, res, result, reason)

	util.LoggerFor(ctx, so.logger).Error("Settlement requires manual check",
		zap.String("order_no", req.OrderNo),
		zap.Int64("payment_id", res.payment.ID),
		zap.String("gateway_tx_id", result.GatewayTxID),
		zap.Error(cause))
	return apperr.Wrap(apperr.CodeManualCheckRequired, cause, "")
}

func (so *SagaOrchestrator) releaseGuard(ctx context.Context, key string) {
	if err := so.guard.ReleaseLock(context.WithoutCancel(ctx), guardKey(key)); err != nil {
		util.LoggerFor(ctx, so.logger).Warn("Failed to release request guard", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (so *SagaOrchestrator) publishApproved(ctx context.Context, payment *models.Payment, result *gateway.Result) {
	if so.events == nil {
		return
	}
	event := &models.SettlementApprovedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeSettlementApproved),
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		UserID:      payment.UserID,
		Amount:      payment.Amount,
		Provider:    payment.Provider,
		GatewayTxID: result.GatewayTxID,
	}
	if err := so.events.PublishSettlementApproved(ctx, event); err != nil {
		util.LoggerFor(ctx, so.logger).Error("Failed to publish SettlementApproved event", zap.Error(err))
	}
}

func (so *SagaOrchestrator) publishFailed(ctx context.Context, res *reservation, code apperr.Code, reason string) {
	if so.events == nil {
		return
	}
	event := &models.SettlementFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSettlementFailed),
		PaymentID: res.payment.ID,
		OrderID:   res.order.ID,
		Code:      string(code),
		Reason:    reason,
	}
	if err := so.events.PublishSettlementFailed(ctx, event); err != nil {
		util.LoggerFor(ctx, so.logger).Error("Failed to publish SettlementFailed event", zap.Error(err))
	}
}

func (so *SagaOrchestrator) publishManualCheck(ctx context.Context, res *reservation, result *gateway.Result, reason string) {
	if so.events == nil {
		return
	}
	event := &models.SettlementManualCheckEvent{
		BaseEvent:   newBaseEvent(models.EventTypeSettlementManualCheck),
		PaymentID:   res.payment.ID,
		OrderID:     res.order.ID,
		UserID:      res.payment.UserID,
		GatewayTxID: result.GatewayTxID,
		Reason:      reason,
	}
	if err := so.events.PublishSettlementManualCheck(ctx, event); err != nil {
		util.LoggerFor(ctx, so.logger).Error("Failed to publish SettlementManualCheck event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func guardKey(idempotencyKey string) string {
	return "settlement:" + idempotencyKey
}

// retryableByCaller reports whether the caller may submit the same request again
func retryableByCaller(err error) bool {
	switch apperr.CategoryOf(apperr.CodeOf(err)) {
	case apperr.CategoryRejected, apperr.CategoryDeclined:
		return !apperr.Is(err, apperr.CodeDuplicateRequest)
	default:
		return false
	}
}

func failureReason(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return fmt.Sprintf("%s: %s", appErr.Code, appErr.Message)
	}
	return err.Error()
}

func reasonLabel(code apperr.Code) string {
	return strings.ToLower(string(code))
}
