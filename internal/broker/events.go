package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProducer writes one keyed event
type EventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing settlement events
type EventPublisher struct {
	outcomes EventProducer
	requests EventProducer
}

// NewEventPublisher creates a new event publisher. requests may be nil when
// asynchronous settlement is not enabled.
func NewEventPublisher(outcomes, requests EventProducer) *EventPublisher {
	return &EventPublisher{outcomes: outcomes, requests: requests}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishSettlementApproved publishes SettlementApproved event
func (ep *EventPublisher) PublishSettlementApproved(ctx context.Context, event *models.SettlementApprovedEvent) error {
	return ep.outcomes.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishSettlementFailed publishes SettlementFailed event
func (ep *EventPublisher) PublishSettlementFailed(ctx context.Context, event *models.SettlementFailedEvent) error {
	return ep.outcomes.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishSettlementManualCheck publishes SettlementManualCheck event
func (ep *EventPublisher) PublishSettlementManualCheck(ctx context.Context, event *models.SettlementManualCheckEvent) error {
	return ep.outcomes.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishSettlementRequested enqueues a settlement for the worker
func (ep *EventPublisher) PublishSettlementRequested(ctx context.Context, event *models.SettlementRequestedEvent) error {
	if ep.requests == nil {
		return fmt.Errorf("asynchronous settlement is not configured")
	}
	return ep.requests.PublishEvent(ctx, event.OrderNo, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSettlementRequested func(context.Context, *models.SettlementRequestedEvent) error
	logger                *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSettlementRequested registers a handler for SettlementRequested events
func (eh *EventHandler) OnSettlementRequested(handler func(context.Context, *models.SettlementRequestedEvent) error) {
	eh.onSettlementRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSettlementRequested:
		if eh.onSettlementRequested != nil {
			var event models.SettlementRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SettlementRequested event: %w", err)
			}
			return eh.onSettlementRequested(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
