package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
)

type fakeDirectory struct {
	mu       sync.Mutex
	conns    map[int64][]realtime.Connection
	viewing  map[int64]bool
	failFor  int64
	lookups  int
	received map[string][]events.EventName
}

func (d *fakeDirectory) CompanyConnections(companyID int64) []realtime.Connection {
	return d.conns[companyID]
}

func (d *fakeDirectory) SendTo(connectionID string, name events.EventName, _ any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.received[connectionID] = append(d.received[connectionID], name)
	return true
}

func (d *fakeDirectory) IsViewing(_ context.Context, _ int64, userID int64) (bool, error) {
	d.mu.Lock()
	d.lookups++
	d.mu.Unlock()
	if userID == d.failFor {
		return false, errors.New("registry unavailable")
	}
	return d.viewing[userID], nil
}

func TestNotificationRelay_SkipsSenderAndViewers(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	directory := &fakeDirectory{
		conns: map[int64][]realtime.Connection{
			1: {
				{ID: "sender", UserID: 10},
				{ID: "viewer", UserID: 20},
				{ID: "owner-tab-1", UserID: 30},
				{ID: "owner-tab-2", UserID: 30},
				{ID: "flaky", UserID: 40},
			},
			2: {{ID: "other-company", UserID: 50}},
		},
		viewing:  map[int64]bool{20: true},
		failFor:  40,
		received: make(map[string][]events.EventName),
	}
	relay := NewNotificationRelay(dispatcher, directory, zap.NewNop(), config.NotificationConfig{Enabled: true})
	relay.RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), events.NewEvent(events.EventTicketUpdate, 1, 0,
		events.TicketUpdatePayload{TicketID: 7, SenderID: 10, RecipientID: 30})))

	assert.Empty(t, directory.received["sender"])
	assert.Empty(t, directory.received["viewer"])
	assert.Empty(t, directory.received["other-company"])
	assert.Equal(t, []events.EventName{events.EventNotification}, directory.received["owner-tab-1"])
	assert.Equal(t, []events.EventName{events.EventNotification}, directory.received["owner-tab-2"])
	assert.Equal(t, []events.EventName{events.EventNotification}, directory.received["flaky"])
	assert.Equal(t, 3, directory.lookups)
}

func TestNotificationRelay_DecodesRelayedPayload(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	directory := &fakeDirectory{
		conns:    map[int64][]realtime.Connection{1: {{ID: "c1", UserID: 30}}},
		received: make(map[string][]events.EventName),
	}
	NewNotificationRelay(dispatcher, directory, nil, config.NotificationConfig{Enabled: true}).RegisterHandlers()

	event := events.NewEvent(events.EventTicketUpdate, 1, 0, nil)
	event.Payload = []byte(`{"ticketId":7,"senderId":10,"recipientId":30}`)
	require.NoError(t, dispatcher.Publish(context.Background(), event))

	assert.Len(t, directory.received["c1"], 1)
}

func TestNotificationRelay_Disabled(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	directory := &fakeDirectory{
		conns:    map[int64][]realtime.Connection{1: {{ID: "c1", UserID: 30}}},
		received: make(map[string][]events.EventName),
	}
	NewNotificationRelay(dispatcher, directory, zap.NewNop(), config.NotificationConfig{Enabled: false}).RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), events.NewEvent(events.EventTicketUpdate, 1, 0,
		events.TicketUpdatePayload{TicketID: 7, SenderID: 10})))
	assert.Empty(t, directory.received)
}
