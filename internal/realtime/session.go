package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
)

// Client to server events.
const (
	clientJoinRoom   = "joinTicketRoom"
	clientLeaveRoom  = "leaveTicketRoom"
	clientTyping     = "typing"
	clientStopTyping = "stopTyping"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// flexibleID decodes a JSON number or a numeric string.
type flexibleID int64

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	parsed, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(string(data)), `"`), 10, 64)
	if err != nil {
		return err
	}
	*f = flexibleID(parsed)
	return nil
}

// roomRequest is the object form of a room event; a bare id is accepted too.
type roomRequest struct {
	TicketID flexibleID `json:"ticketId"`
}

// Session is one live client connection.
type Session struct {
	id       string
	identity *domain.Identity
	conn     *websocket.Conn
	hub      *Hub
	logger   *zap.Logger

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, identity *domain.Identity, conn *websocket.Conn, hub *Hub) *Session {
	return &Session{
		id:       id,
		identity: identity,
		conn:     conn,
		hub:      hub,
		logger:   hub.logger.With(zap.String("connection_id", id), zap.Int64("user_id", identity.UserID)),
		out:      make(chan []byte, hub.sendBuffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// enqueue queues an encoded frame without blocking. Frames for a slow
// consumer are dropped.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- data:
		return true
	default:
		s.hub.metrics.FrameDropped()
		s.logger.Debug("send buffer full; frame dropped")
		return false
	}
}

func (s *Session) send(name events.EventName, payload any) bool {
	data, err := json.Marshal(Frame{Event: name, Data: payload})
	if err != nil {
		s.logger.Error("encode frame", zap.String("event", string(name)), zap.Error(err))
		return false
	}
	return s.enqueue(data)
}

func (s *Session) sendError(err error) {
	message := "request failed"
	if domainErr := apperrors.ToDomainError(err); domainErr.HTTPStatus < 500 {
		message = domainErr.Message
	} else {
		s.logger.Error("realtime request failed", zap.Error(err))
	}
	s.send(events.EventError, events.ErrorPayload{Message: message})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			s.hub.touchRooms(ctx, s.id)
			cancel()
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("connection closed", zap.Error(err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError(apperrors.NewValidationError("malformed frame", nil))
			continue
		}
		if err := s.handle(ctx, frame); err != nil {
			s.sendError(err)
		}
	}
}

func (s *Session) handle(ctx context.Context, frame inboundFrame) error {
	switch frame.Event {
	case clientJoinRoom:
		ticketID, err := parseTicketID(frame.Data)
		if err != nil {
			return err
		}
		return s.hub.join(ctx, s, ticketID)
	case clientLeaveRoom:
		ticketID, err := parseTicketID(frame.Data)
		if err != nil {
			return err
		}
		return s.hub.leave(ctx, s, ticketID)
	case clientTyping, clientStopTyping:
		ticketID, err := parseTicketID(frame.Data)
		if err != nil {
			return err
		}
		if !s.hub.inRoom(s, ticketID) {
			return apperrors.NewForbidden("join the ticket room first")
		}
		if frame.Event == clientTyping {
			return s.hub.PublishToRoom(ctx, s.identity.CompanyID, ticketID, events.EventUserTyping,
				events.TypingPayload{UserName: s.identity.FullName}, s.id)
		}
		return s.hub.PublishToRoom(ctx, s.identity.CompanyID, ticketID, events.EventUserStoppedTyping, nil, s.id)
	default:
		return apperrors.NewValidationError("unknown event", map[string]any{"event": frame.Event})
	}
}

func parseTicketID(data json.RawMessage) (int64, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return 0, apperrors.NewMissingField("ticketId")
	}

	var id flexibleID
	var err error
	if strings.HasPrefix(trimmed, "{") {
		var req roomRequest
		err = json.Unmarshal(data, &req)
		id = req.TicketID
	} else {
		err = id.UnmarshalJSON(data)
	}
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticketId", map[string]any{"field": "ticketId"})
	}
	return int64(id), nil
}
