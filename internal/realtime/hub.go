package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// RoomAuthorizer decides whether an identity may watch a ticket room.
// It returns the same errors a ticket detail request would.
type RoomAuthorizer interface {
	CanView(ctx context.Context, identity *domain.Identity, ticketID int64) error
}

// Relay forwards locally published events to other instances.
type Relay interface {
	Publish(ctx context.Context, event events.Event) error
}

// Connection identifies one live connection of a user.
type Connection struct {
	ID     string
	UserID int64
}

// Frame is the JSON envelope exchanged with clients in both directions.
type Frame struct {
	Event events.EventName `json:"event"`
	Data  any              `json:"data"`
}

// HubOptions configures a Hub.
type HubOptions struct {
	Registry   Registry
	Authorizer RoomAuthorizer
	Dispatcher events.Dispatcher
	Relay      Relay
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	SendBuffer int
}

// Hub owns the sessions connected to this instance and implements
// events.Bus. Room membership lives in the Registry; the hub only indexes its
// local sessions so it can deliver events to them.
type Hub struct {
	registry   Registry
	authorizer RoomAuthorizer
	dispatcher events.Dispatcher
	relay      Relay
	metrics    *observability.Metrics
	logger     *zap.Logger
	sendBuffer int

	mu        sync.RWMutex
	sessions  map[string]*Session
	companies map[int64]map[string]*Session
	rooms     map[int64]map[string]*Session
}

var _ events.Bus = (*Hub)(nil)

// NewHub builds a hub. Registry is required; Authorizer may be supplied
// later through SetAuthorizer.
func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = events.NewInMemoryDispatcher(opts.Logger)
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Hub{
		registry:   opts.Registry,
		authorizer: opts.Authorizer,
		dispatcher: opts.Dispatcher,
		relay:      opts.Relay,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		sendBuffer: opts.SendBuffer,
		sessions:   make(map[string]*Session),
		companies:  make(map[int64]map[string]*Session),
		rooms:      make(map[int64]map[string]*Session),
	}
}

// SetAuthorizer replaces the room authorizer. It must be called before the
// server accepts connections.
func (h *Hub) SetAuthorizer(authorizer RoomAuthorizer) {
	h.authorizer = authorizer
}

// PublishToRoom implements events.Bus.
func (h *Hub) PublishToRoom(ctx context.Context, companyID, ticketID int64, name events.EventName, payload any, excludeConn string) error {
	event := events.NewEvent(name, companyID, ticketID, payload)
	event.ExcludeConn = excludeConn
	return h.publish(ctx, event)
}

// PublishGlobal implements events.Bus.
func (h *Hub) PublishGlobal(ctx context.Context, companyID int64, name events.EventName, payload any) error {
	return h.publish(ctx, events.NewEvent(name, companyID, 0, payload))
}

// publish delivers locally and mirrors the event to other instances. Events
// are best-effort, so a relay failure is logged and not returned.
func (h *Hub) publish(ctx context.Context, event events.Event) error {
	h.Deliver(ctx, event)
	if h.relay == nil {
		return nil
	}
	if err := h.relay.Publish(ctx, event); err != nil {
		h.logger.Warn("relay publish failed", zap.String("event", string(event.Name)), zap.Error(err))
	}
	return nil
}

// Deliver sends the event to the matching local sessions and hands it to
// the local dispatcher subscribers. The relay calls it for events published
// on other instances.
func (h *Hub) Deliver(ctx context.Context, event events.Event) {
	data, err := json.Marshal(Frame{Event: event.Name, Data: event.Payload})
	if err != nil {
		h.logger.Error("encode event", zap.String("event", string(event.Name)), zap.Error(err))
		return
	}

	for _, session := range h.targets(event) {
		session.enqueue(data)
	}

	if err := h.dispatcher.Publish(ctx, event); err != nil {
		h.logger.Warn("dispatch event", zap.String("event", string(event.Name)), zap.Error(err))
	}
}

func (h *Hub) targets(event events.Event) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var pool map[string]*Session
	if event.Global() {
		pool = h.companies[event.CompanyID]
	} else {
		pool = h.rooms[event.Room]
	}
	out := make([]*Session, 0, len(pool))
	for id, session := range pool {
		if id == event.ExcludeConn {
			continue
		}
		out = append(out, session)
	}
	return out
}

// CompanyConnections lists the live local connections of a company.
func (h *Hub) CompanyConnections(companyID int64) []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Connection, 0, len(h.companies[companyID]))
	for id, session := range h.companies[companyID] {
		out = append(out, Connection{ID: id, UserID: session.identity.UserID})
	}
	return out
}

// SendTo delivers one event to a single local connection. It reports false
// when the connection is unknown or its buffer is full.
func (h *Hub) SendTo(connectionID string, name events.EventName, payload any) bool {
	h.mu.RLock()
	session, ok := h.sessions[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return session.send(name, payload)
}

// IsViewing reports whether the user has any connection in the ticket room.
func (h *Hub) IsViewing(ctx context.Context, ticketID, userID int64) (bool, error) {
	return h.registry.IsViewing(ctx, ticketID, userID)
}

func (h *Hub) register(session *Session) {
	h.mu.Lock()
	h.sessions[session.id] = session
	company := h.companies[session.identity.CompanyID]
	if company == nil {
		company = make(map[string]*Session)
		h.companies[session.identity.CompanyID] = company
	}
	company[session.id] = session
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
}

// unregister removes the session and leaves every room it joined.
func (h *Hub) unregister(ctx context.Context, session *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[session.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, session.id)
	if company := h.companies[session.identity.CompanyID]; company != nil {
		delete(company, session.id)
		if len(company) == 0 {
			delete(h.companies, session.identity.CompanyID)
		}
	}
	var joined []int64
	for ticketID, room := range h.rooms {
		if _, ok := room[session.id]; ok {
			joined = append(joined, ticketID)
		}
	}
	h.mu.Unlock()
	h.metrics.ConnectionClosed()

	for _, ticketID := range joined {
		if err := h.leave(ctx, session, ticketID); err != nil {
			h.logger.Warn("leave on disconnect", zap.Int64("ticket_id", ticketID), zap.Error(err))
		}
	}
}

func (h *Hub) join(ctx context.Context, session *Session, ticketID int64) error {
	if h.authorizer == nil {
		return apperrors.NewForbidden("rooms are not available")
	}
	if err := h.authorizer.CanView(ctx, session.identity, ticketID); err != nil {
		return err
	}

	members, err := h.registry.Join(ctx, ticketID, events.RoomMember{
		UserID:       session.identity.UserID,
		UserName:     session.identity.FullName,
		ConnectionID: session.id,
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	room := h.rooms[ticketID]
	if room == nil {
		room = make(map[string]*Session)
		h.rooms[ticketID] = room
	}
	room[session.id] = session
	h.mu.Unlock()

	return h.PublishToRoom(ctx, session.identity.CompanyID, ticketID, events.EventRoomUsersUpdate, members, "")
}

func (h *Hub) leave(ctx context.Context, session *Session, ticketID int64) error {
	h.mu.Lock()
	if room := h.rooms[ticketID]; room != nil {
		delete(room, session.id)
		if len(room) == 0 {
			delete(h.rooms, ticketID)
		}
	}
	h.mu.Unlock()

	members, removed, err := h.registry.Leave(ctx, ticketID, session.id)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	return h.PublishToRoom(ctx, session.identity.CompanyID, ticketID, events.EventRoomUsersUpdate, members, "")
}

// touchRooms extends the presence expiry of every room the connection is in.
func (h *Hub) touchRooms(ctx context.Context, connectionID string) {
	h.mu.RLock()
	var joined []int64
	for ticketID, room := range h.rooms {
		if _, ok := room[connectionID]; ok {
			joined = append(joined, ticketID)
		}
	}
	h.mu.RUnlock()

	for _, ticketID := range joined {
		if err := h.registry.Touch(ctx, ticketID); err != nil {
			h.logger.Warn("refresh room presence", zap.Int64("ticket_id", ticketID), zap.Error(err))
		}
	}
}

func (h *Hub) inRoom(session *Session, ticketID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[ticketID][session.id]
	return ok
}
