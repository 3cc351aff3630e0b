package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated TicketChangeType = "CREATED"
	ChangeTypeStatus  TicketChangeType = "STATUS_CHANGE"
	ChangeTypeContent TicketChangeType = "CONTENT_CHANGE"
)

// TicketHistory is an immutable audit trail entry. ChangedByUserID is nil for
// changes made by the resolved-ticket sweep.
type TicketHistory struct {
	ID              int64
	TicketID        int64
	ChangedByUserID *int64
	ChangeType      TicketChangeType
	OldValue        map[string]any
	NewValue        map[string]any
	CreatedAt       time.Time
}
