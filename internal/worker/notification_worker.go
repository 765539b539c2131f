package worker

import (
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/service"
)

// StartNotificationWorker registers notification handlers and, when given,
// attaches the broker bridge to the same dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService, dispatcher events.Dispatcher, bridge *events.AMQPBridge) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if bridge != nil && dispatcher != nil {
		bridge.Attach(dispatcher)
	}
}
