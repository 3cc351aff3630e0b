package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from TicketStatus
		to   TicketStatus
		want bool
	}{
		{TicketStatusOpen, TicketStatusInReview, true},
		{TicketStatusOpen, TicketStatusResolved, true},
		{TicketStatusOpen, TicketStatusCancelled, true},
		{TicketStatusOpen, TicketStatusClosed, false},
		{TicketStatusOpen, TicketStatusOpen, false},
		{TicketStatusInReview, TicketStatusOpen, true},
		{TicketStatusInReview, TicketStatusResolved, true},
		{TicketStatusInReview, TicketStatusCancelled, false},
		{TicketStatusResolved, TicketStatusClosed, false},
		{TicketStatusResolved, TicketStatusOpen, false},
		{TicketStatusClosed, TicketStatusOpen, false},
		{TicketStatusCancelled, TicketStatusOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTicketStatus_Valid(t *testing.T) {
	for _, s := range TicketStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, TicketStatus("all").Valid())
	assert.False(t, TicketStatus("abierto").Valid())
}

func TestTicket_Editable(t *testing.T) {
	for _, s := range TicketStatuses {
		ticket := &Ticket{Status: s}
		assert.Equal(t, s == TicketStatusOpen, ticket.Editable(), s)
	}
}

func TestTicketStatus_Terminal(t *testing.T) {
	assert.True(t, TicketStatusClosed.Terminal())
	assert.True(t, TicketStatusCancelled.Terminal())
	assert.False(t, TicketStatusResolved.Terminal())
}
