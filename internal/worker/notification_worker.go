package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to ticket
// events. Delivery runs on the publishing goroutine, so there is nothing to
// stop on shutdown.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	subscribed := notificationService.RegisterHandlers()
	names := make([]string, 0, len(subscribed))
	for _, ev := range subscribed {
		names = append(names, string(ev))
	}
	logger.Info("notification handlers registered", zap.Strings("events", names))
}
