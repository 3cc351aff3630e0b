package domain

import "time"

// Message is a chat entry on a ticket. Text, attachment, or both.
type Message struct {
	ID          int64
	TicketID    int64
	SenderID    int64
	SenderName  string
	MessageText *string
	SentAt      time.Time
	IsRead      bool
	FileName    *string
	FileURL     *string
	FileType    *string
}

// HasAttachment reports whether the message carries a stored file.
func (m *Message) HasAttachment() bool {
	return m.FileURL != nil && *m.FileURL != ""
}
