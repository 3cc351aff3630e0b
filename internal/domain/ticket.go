package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "Abierto"
	TicketStatusInReview  TicketStatus = "En Revisión"
	TicketStatusResolved  TicketStatus = "Resuelto"
	TicketStatusClosed    TicketStatus = "Cerrado"
	TicketStatusCancelled TicketStatus = "Cancelado"
)

// TicketStatuses lists every status in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInReview,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusCancelled,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range TicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no caller-driven transition may leave s.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              int64
	Title           string
	Description     string
	Status          TicketStatus
	CreatedByUserID int64
	AssignedToArea  Area
	CompanyID       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time

	// UnreadCount is computed per caller and never persisted.
	UnreadCount int
}

// Editable reports whether title and description may still change.
func (t *Ticket) Editable() bool {
	return t.Status == TicketStatusOpen
}

// callerTransitions is the strict table of transitions members of the
// assigned area may request. Resuelto → Cerrado is reserved for the sweep.
var callerTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:      {TicketStatusInReview, TicketStatusResolved, TicketStatusCancelled},
	TicketStatusInReview:  {TicketStatusOpen, TicketStatusResolved},
	TicketStatusResolved:  {},
	TicketStatusClosed:    {},
	TicketStatusCancelled: {},
}

// CanTransition reports whether a caller may move a ticket from current to next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range callerTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
