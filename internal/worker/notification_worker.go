package worker

import (
	"github.com/merturl4576/pyservice-mini-itsm/internal/service"
)

// StartNotificationWorker registers notification handlers on the event
// stream.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
