package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/events"
)

// NotificationService is the in-process subscriber for booking events. It
// records what would be sent; delivery channels live outside this service.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventBookingCreated, n.handleBookingCreated)
	n.dispatcher.Subscribe(events.EventBookingStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventRefundResolved, n.handleRefundResolved)
}

func (n *NotificationService) handleBookingCreated(_ context.Context, event events.Event) error {
	n.logger.Info("BookingCreated",
		zap.String("booking_id", event.BookingID),
		zap.String("actor_kind", string(event.Actor.Kind)),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleStatusChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.BookingStatusChangedPayload)
	if !ok {
		n.logger.Info("BookingStatusChanged", zap.String("booking_id", event.BookingID), zap.Any("payload", event.Payload))
		return nil
	}
	fields := []zap.Field{
		zap.String("booking_id", event.BookingID),
		zap.String("event", string(payload.Event)),
		zap.String("old_status", string(payload.OldStatus)),
		zap.String("new_status", string(payload.NewStatus)),
	}
	if payload.Outcome != "" {
		// the customer is told whether their cancellation request was approved or rejected
		fields = append(fields, zap.String("outcome", payload.Outcome))
	}
	n.logger.Info("BookingStatusChanged", fields...)
	return nil
}

func (n *NotificationService) handleRefundResolved(_ context.Context, event events.Event) error {
	n.logger.Info("RefundResolved", zap.String("booking_id", event.BookingID), zap.Any("payload", event.Payload))
	return nil
}
