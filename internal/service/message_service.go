package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// MessageService manages the chat thread of tickets.
type MessageService struct {
	tickets  *TicketService
	messages repository.TicketMessageRepository
	blobs    storage.BlobStore
	bus      events.Bus
	clock    clock.Clock
	logger   *zap.Logger
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	Tickets     *TicketService
	MessageRepo repository.TicketMessageRepository
	Blobs       storage.BlobStore
	Bus         events.Bus
	Clock       clock.Clock
	Logger      *zap.Logger
}

// MessageInput is a new chat message. SocketID names the sender's live
// connection so the room echo can skip it.
type MessageInput struct {
	Text     string
	File     *storage.Upload
	SocketID string
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	if deps.Bus == nil {
		deps.Bus = events.NopBus{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &MessageService{
		tickets:  deps.Tickets,
		messages: deps.MessageRepo,
		blobs:    deps.Blobs,
		bus:      deps.Bus,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// Add stores a message with text, an attachment or both, echoes it to the
// ticket room and announces it company wide.
func (s *MessageService) Add(ctx context.Context, identity *domain.Identity, ticketID int64, input MessageInput) (*domain.Message, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" && input.File == nil {
		return nil, apperrors.NewValidationError("messagetext or file is required", map[string]any{
			"fields": []string{"messagetext", "file"},
		})
	}

	ticket, err := s.tickets.loadVisible(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		TicketID:   ticket.ID,
		SenderID:   identity.UserID,
		SenderName: identity.FullName,
		SentAt:     s.clock.Now(),
	}
	if text != "" {
		msg.MessageText = &text
	}
	if input.File != nil {
		if s.blobs == nil {
			return nil, apperrors.NewValidationError("attachments are disabled", map[string]any{"field": "file"})
		}
		obj, err := s.blobs.Put(ctx, *input.File)
		if err != nil {
			return nil, err
		}
		msg.FileName = &obj.FileName
		msg.FileURL = &obj.URL
		msg.FileType = &obj.MIMEType
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := s.bus.PublishToRoom(ctx, ticket.CompanyID, ticket.ID, events.EventNewMessage,
		events.NewMessagePayload(*msg), strings.TrimSpace(input.SocketID)); err != nil {
		s.logger.Warn("publish new message", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	if err := s.bus.PublishGlobal(ctx, ticket.CompanyID, events.EventTicketUpdate, events.TicketUpdatePayload{
		TicketID:    ticket.ID,
		SenderID:    identity.UserID,
		RecipientID: ticket.CreatedByUserID,
	}); err != nil {
		s.logger.Warn("publish ticket update", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	return msg, nil
}

// List returns the thread of a visible ticket, oldest first.
func (s *MessageService) List(ctx context.Context, identity *domain.Identity, ticketID int64) ([]domain.Message, error) {
	ticket, err := s.tickets.loadVisible(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// MarkAsRead flags every message of the ticket not sent by the caller as
// read and tells the room.
func (s *MessageService) MarkAsRead(ctx context.Context, identity *domain.Identity, ticketID int64) (int64, error) {
	ticket, err := s.tickets.loadVisible(ctx, identity, ticketID)
	if err != nil {
		return 0, err
	}
	changed, err := s.messages.MarkRead(ctx, identity.CompanyID, ticket.ID, identity.UserID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	if err := s.bus.PublishToRoom(ctx, ticket.CompanyID, ticket.ID, events.EventMessagesRead,
		events.MessagesReadPayload{ReaderID: identity.UserID}, ""); err != nil {
		s.logger.Warn("publish messages read", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	return changed, nil
}
