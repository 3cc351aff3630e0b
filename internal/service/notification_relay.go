package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
)

// ConnectionDirectory is the view of live connections the relay needs.
type ConnectionDirectory interface {
	CompanyConnections(companyID int64) []realtime.Connection
	SendTo(connectionID string, name events.EventName, payload any) bool
	IsViewing(ctx context.Context, ticketID, userID int64) (bool, error)
}

// NotificationRelay turns company-wide ticketUpdate events into targeted
// notification frames for users who are not already looking at the ticket.
type NotificationRelay struct {
	dispatcher events.Dispatcher
	directory  ConnectionDirectory
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationRelay creates the relay.
func NewNotificationRelay(dispatcher events.Dispatcher, directory ConnectionDirectory, logger *zap.Logger, cfg config.NotificationConfig) *NotificationRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationRelay{
		dispatcher: dispatcher,
		directory:  directory,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationRelay) RegisterHandlers() {
	if n.dispatcher == nil || n.directory == nil || !n.cfg.Enabled {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketUpdate, n.handleTicketUpdate)
}

func (n *NotificationRelay) handleTicketUpdate(ctx context.Context, event events.Event) error {
	var payload events.TicketUpdatePayload
	if err := events.DecodePayload(event, &payload); err != nil {
		return err
	}

	// Presence is per user, so look each user up once.
	viewing := make(map[int64]bool)
	delivered := 0
	for _, conn := range n.directory.CompanyConnections(event.CompanyID) {
		if conn.UserID == payload.SenderID {
			continue
		}
		inRoom, seen := viewing[conn.UserID]
		if !seen {
			var err error
			inRoom, err = n.directory.IsViewing(ctx, payload.TicketID, conn.UserID)
			if err != nil {
				n.logger.Warn("presence lookup failed",
					zap.Int64("ticket_id", payload.TicketID),
					zap.Int64("user_id", conn.UserID),
					zap.Error(err))
				inRoom = false
			}
			viewing[conn.UserID] = inRoom
		}
		if inRoom {
			continue
		}
		if n.directory.SendTo(conn.ID, events.EventNotification, payload) {
			delivered++
		}
	}

	n.logger.Debug("notification relayed",
		zap.Int64("company_id", event.CompanyID),
		zap.Int64("ticket_id", payload.TicketID),
		zap.Int("connections", delivered))
	return nil
}
