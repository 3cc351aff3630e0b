package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventName identifies a realtime event on the wire.
type EventName string

// Server to client events.
const (
	EventConnected         EventName = "connected"
	EventError             EventName = "error"
	EventRoomUsersUpdate   EventName = "roomUsersUpdate"
	EventUserTyping        EventName = "userTyping"
	EventUserStoppedTyping EventName = "userStoppedTyping"
	EventNewMessage        EventName = "newMessage"
	EventTicketCreated     EventName = "ticketCreated"
	EventTicketUpdated     EventName = "ticketUpdated"
	EventTicketUpdate      EventName = "ticketUpdate"
	EventMessagesRead      EventName = "messagesRead"
	EventNotification      EventName = "notification"
)

// Event is the envelope carried through the hub, the dispatcher and the
// cross-instance relay. Room zero means a company-wide broadcast.
type Event struct {
	ID          string    `json:"id"`
	Name        EventName `json:"name"`
	CompanyID   int64     `json:"companyId"`
	Room        int64     `json:"room,omitempty"`
	ExcludeConn string    `json:"excludeConn,omitempty"`
	Payload     any       `json:"payload"`
	Timestamp   time.Time `json:"timestamp"`
	InstanceID  string    `json:"instanceId,omitempty"`
}

// NewEvent stamps a fresh id and timestamp.
func NewEvent(name EventName, companyID, room int64, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		CompanyID: companyID,
		Room:      room,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Global reports whether the event targets the whole company.
func (e Event) Global() bool {
	return e.Room == 0
}

// DecodePayload converts the payload into out. It works both for typed
// payloads published in process and for raw JSON received from the relay.
func DecodePayload(e Event, out any) error {
	var raw []byte
	switch p := e.Payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return err
		}
		raw = encoded
	}
	return json.Unmarshal(raw, out)
}

// RoomMember is one presence entry of a ticket room.
type RoomMember struct {
	UserID       int64  `json:"userId"`
	UserName     string `json:"userName"`
	ConnectionID string `json:"connectionId"`
}

// ConnectedPayload is sent once per connection after the upgrade.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// ErrorPayload reports a rejected client request to its connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TypingPayload payload.
type TypingPayload struct {
	UserName string `json:"userName"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketID       int64       `json:"ticketId"`
	AssignedToArea domain.Area `json:"assignedToArea"`
}

// TicketUpdatedPayload carries the ticket id in room events and nothing in
// the list refresh broadcast.
type TicketUpdatedPayload struct {
	TicketID int64 `json:"ticketId,omitempty"`
}

// TicketUpdatePayload announces a new message to the whole company. The
// notification event reuses it.
type TicketUpdatePayload struct {
	TicketID    int64 `json:"ticketId"`
	SenderID    int64 `json:"senderId"`
	RecipientID int64 `json:"recipientId"`
}

// MessagesReadPayload payload.
type MessagesReadPayload struct {
	ReaderID int64 `json:"readerId"`
}

// MessagePayload is the wire shape of a chat message, shared with the REST API.
type MessagePayload struct {
	ID          int64     `json:"messageId"`
	TicketID    int64     `json:"ticketId"`
	SenderID    int64     `json:"senderId"`
	SenderName  string    `json:"senderName"`
	MessageText *string   `json:"messageText"`
	SentAt      time.Time `json:"sentAt"`
	IsRead      bool      `json:"isRead"`
	FileName    *string   `json:"fileName"`
	FileURL     *string   `json:"fileUrl"`
	FileType    *string   `json:"fileType"`
}

// NewMessagePayload converts a stored message.
func NewMessagePayload(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		TicketID:    m.TicketID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		MessageText: m.MessageText,
		SentAt:      m.SentAt,
		IsRead:      m.IsRead,
		FileName:    m.FileName,
		FileURL:     m.FileURL,
		FileType:    m.FileType,
	}
}
