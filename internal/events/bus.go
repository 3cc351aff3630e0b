package events

import "context"

// Bus fans events out to live connections. Delivery is best effort: a
// connection that is gone when the event is published never sees it.
type Bus interface {
	// PublishToRoom delivers to every connection joined to the ticket room,
	// skipping excludeConn when it names one of them.
	PublishToRoom(ctx context.Context, companyID, ticketID int64, name EventName, payload any, excludeConn string) error
	// PublishGlobal delivers to every connection of the company.
	PublishGlobal(ctx context.Context, companyID int64, name EventName, payload any) error
}

// NopBus drops every event.
type NopBus struct{}

func (NopBus) PublishToRoom(context.Context, int64, int64, EventName, any, string) error { return nil }
func (NopBus) PublishGlobal(context.Context, int64, EventName, any) error               { return nil }
