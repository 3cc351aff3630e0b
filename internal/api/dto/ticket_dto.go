package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	AssignedToArea domain.Area `json:"assignedToArea"`
}

// UpdateTicketRequest payload. Omitted fields are left unchanged.
type UpdateTicketRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// TicketResponse is a ticket as seen by the caller.
type TicketResponse struct {
	ID              int64               `json:"ticketId"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Status          domain.TicketStatus `json:"status"`
	CreatedByUserID int64               `json:"createdByUserId"`
	AssignedToArea  domain.Area         `json:"assignedToArea"`
	CompanyID       int64               `json:"companyId"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	ResolvedAt      *time.Time          `json:"resolvedAt"`
	UnreadCount     int                 `json:"unreadCount"`
}

// TicketPageResponse is one page of the ticket list.
type TicketPageResponse struct {
	Tickets     []TicketResponse `json:"tickets"`
	Total       int              `json:"total"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
	PageSize    int              `json:"pageSize"`
}

// TicketHistoryResponse is one audit trail entry.
type TicketHistoryResponse struct {
	ID              int64                   `json:"id"`
	TicketID        int64                   `json:"ticketId"`
	ChangedByUserID *int64                  `json:"changedByUserId"`
	ChangeType      domain.TicketChangeType `json:"changeType"`
	OldValue        map[string]any          `json:"oldValue"`
	NewValue        map[string]any          `json:"newValue"`
	CreatedAt       time.Time               `json:"createdAt"`
}

// CreateMessageRequest is the JSON form of a text-only message. Attachments
// are sent as multipart form data instead.
type CreateMessageRequest struct {
	MessageText string `json:"messageText"`
	SocketID    string `json:"socketId"`
}

// MessageResponse has the same shape as the newMessage event.
type MessageResponse = events.MessagePayload

// MarkReadResponse reports how many messages changed.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}
