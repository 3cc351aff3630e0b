package worker

import (
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// StartNotificationRelay registers the relay's event handlers.
func StartNotificationRelay(relay *service.NotificationRelay) {
	if relay == nil {
		return
	}
	relay.RegisterHandlers()
}
