package worker

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartNotificationWorker registers notification handlers and starts delivery.
// The returned func stops the workers.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService) func(context.Context) error {
	if notificationService == nil {
		return func(context.Context) error { return nil }
	}
	notificationService.RegisterHandlers()
	notificationService.Start(ctx)
	return notificationService.Stop
}
