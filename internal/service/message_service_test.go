package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/storage"
)

func TestMessageService_AddEchoesToRoomAndNotifies(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	support := f.user(t, admin.CompanyID, "s", domain.RoleStandard, domain.AreaSupport)
	ticket := f.ticket(t, operator, domain.AreaSupport)
	f.bus.reset()

	msg, err := f.messages.Add(ctx, support, ticket.ID, MessageInput{Text: "  On my way  ", SocketID: "conn-1"})
	require.NoError(t, err)
	require.NotNil(t, msg.MessageText)
	assert.Equal(t, "On my way", *msg.MessageText)
	assert.Equal(t, support.FullName, msg.SenderName)
	assert.False(t, msg.IsRead)

	echo := f.bus.named(events.EventNewMessage)
	require.Len(t, echo, 1)
	assert.Equal(t, ticket.ID, echo[0].Room)
	assert.Equal(t, "conn-1", echo[0].Exclude)
	payload, ok := echo[0].Payload.(events.MessagePayload)
	require.True(t, ok)
	assert.Equal(t, support.FullName, payload.SenderName)

	notify := f.bus.named(events.EventTicketUpdate)
	require.Len(t, notify, 1)
	assert.Equal(t, int64(0), notify[0].Room)
	assert.Equal(t, events.TicketUpdatePayload{
		TicketID:    ticket.ID,
		SenderID:    support.UserID,
		RecipientID: operator.UserID,
	}, notify[0].Payload)
}

func TestMessageService_AddWithoutSocketIDReachesWholeRoom(t *testing.T) {
	f := newFixture(t, true)
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	ticket := f.ticket(t, operator, domain.AreaSupport)

	_, err := f.messages.Add(context.Background(), operator, ticket.ID, MessageInput{Text: "hello"})
	require.NoError(t, err)
	echo := f.bus.named(events.EventNewMessage)
	require.Len(t, echo, 1)
	assert.Empty(t, echo[0].Exclude)
}

func TestMessageService_AddRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	ticket := f.ticket(t, operator, domain.AreaSupport)
	other := f.company(t, "two")

	_, err := f.messages.Add(ctx, operator, ticket.ID, MessageInput{Text: "   "})
	requireCode(t, err, "VALIDATION_FAILED")

	_, err = f.messages.Add(ctx, other, ticket.ID, MessageInput{Text: "hi"})
	requireCode(t, err, "NOT_FOUND")

	_, err = f.messages.Add(ctx, operator, ticket.ID, MessageInput{File: &storage.Upload{
		FileName:    "run.sh",
		ContentType: "application/x-sh",
		Body:        strings.NewReader("#!/bin/sh"),
	}})
	requireCode(t, err, "VALIDATION_FAILED")

	msgs, err := f.messages.List(ctx, operator, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, f.bus.named(events.EventNewMessage))
}

func TestMessageService_AddAttachment(t *testing.T) {
	f := newFixture(t, true)
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	ticket := f.ticket(t, operator, domain.AreaSupport)

	msg, err := f.messages.Add(context.Background(), operator, ticket.ID, MessageInput{File: &storage.Upload{
		FileName: "error.txt",
		Body:     strings.NewReader("paper jam in tray 2"),
	}})
	require.NoError(t, err)
	assert.Nil(t, msg.MessageText)
	require.NotNil(t, msg.FileName)
	assert.Equal(t, "error.txt", *msg.FileName)
	require.NotNil(t, msg.FileType)
	assert.Equal(t, "text/plain", *msg.FileType)
	require.NotNil(t, msg.FileURL)
	assert.True(t, strings.HasPrefix(*msg.FileURL, "/uploads/"))
	assert.True(t, strings.HasSuffix(*msg.FileURL, ".txt"))
}

func TestMessageService_ListOrdersBySentAt(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	ticket := f.ticket(t, operator, domain.AreaSupport)

	for _, text := range []string{"first", "second"} {
		_, err := f.messages.Add(ctx, operator, ticket.ID, MessageInput{Text: text})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	_, err := f.messages.Add(ctx, admin, ticket.ID, MessageInput{Text: "third"})
	require.NoError(t, err)

	msgs, err := f.messages.List(ctx, admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", *msgs[0].MessageText)
	assert.Equal(t, "third", *msgs[2].MessageText)
	assert.Equal(t, admin.FullName, msgs[2].SenderName)

	accounting := f.user(t, admin.CompanyID, "acc", domain.RoleStandard, domain.AreaAccounting)
	_, err = f.messages.List(ctx, accounting, ticket.ID)
	requireCode(t, err, "FORBIDDEN")
}

func TestMessageService_UnreadCountsAndMarkAsRead(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	support := f.user(t, admin.CompanyID, "s", domain.RoleStandard, domain.AreaSupport)
	ticket := f.ticket(t, operator, domain.AreaSupport)

	for _, text := range []string{"checking", "fixed?"} {
		_, err := f.messages.Add(ctx, support, ticket.ID, MessageInput{Text: text})
		require.NoError(t, err)
	}
	_, err := f.messages.Add(ctx, operator, ticket.ID, MessageInput{Text: "yes"})
	require.NoError(t, err)

	page, err := f.tickets.List(ctx, operator, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Tickets, 1)
	assert.Equal(t, 2, page.Tickets[0].UnreadCount)

	got, err := f.tickets.Get(ctx, support, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)

	f.bus.reset()
	changed, err := f.messages.MarkAsRead(ctx, operator, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	read := f.bus.named(events.EventMessagesRead)
	require.Len(t, read, 1)
	assert.Equal(t, ticket.ID, read[0].Room)
	assert.Empty(t, read[0].Exclude)
	assert.Equal(t, events.MessagesReadPayload{ReaderID: operator.UserID}, read[0].Payload)

	got, err = f.tickets.Get(ctx, operator, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCount)

	got, err = f.tickets.Get(ctx, support, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)

	changed, err = f.messages.MarkAsRead(ctx, operator, ticket.ID)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestMessageService_AttachmentsDisabledWithoutBlobStore(t *testing.T) {
	f := newFixture(t, true)
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	ticket := f.ticket(t, operator, domain.AreaSupport)

	service := NewMessageService(MessageDependencies{
		Tickets:     f.tickets,
		MessageRepo: f.store.Messages(),
		Clock:       f.clock,
	})
	_, err := service.Add(context.Background(), operator, ticket.ID, MessageInput{File: &storage.Upload{
		FileName: "a.txt",
		Body:     strings.NewReader("x"),
	}})
	requireCode(t, err, "VALIDATION_FAILED")
}

func TestMessageService_AttachmentIsWrittenToDisk(t *testing.T) {
	dir := t.TempDir()
	blobs, err := storage.NewLocalStore(dir, "/files", 1024)
	require.NoError(t, err)

	f := newFixture(t, true)
	admin := f.company(t, "one")
	operator := f.user(t, admin.CompanyID, "o", domain.RoleStandard, domain.AreaOperations)
	ticket := f.ticket(t, operator, domain.AreaSupport)

	service := NewMessageService(MessageDependencies{
		Tickets:     f.tickets,
		MessageRepo: f.store.Messages(),
		Blobs:       blobs,
		Clock:       f.clock,
	})
	msg, err := service.Add(context.Background(), operator, ticket.ID, MessageInput{
		Text: "log attached",
		File: &storage.Upload{FileName: "log.txt", ContentType: "text/plain", Body: strings.NewReader("boom")},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(*msg.FileURL, "/files/")))
	require.NoError(t, err)
	assert.Equal(t, "boom", string(data))
}
