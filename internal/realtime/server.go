package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

// Authenticator resolves a raw credential into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*domain.Identity, error)
}

// Server upgrades authenticated HTTP requests to websocket sessions.
type Server struct {
	hub            *Hub
	authenticator  Authenticator
	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}
	logger         *zap.Logger
}

// NewServer builds a server. With no allowed origins every origin is
// accepted.
func NewServer(hub *Hub, authenticator Authenticator, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:            hub,
		authenticator:  authenticator,
		allowedOrigins: make(map[string]struct{}, len(allowedOrigins)),
		logger:         logger,
	}
	for _, origin := range allowedOrigins {
		s.allowedOrigins[strings.TrimRight(strings.ToLower(origin), "/")] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler mounts the server at path.
func (s *Server) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, s)
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	_, ok := s.allowedOrigins[strings.ToLower(parsed.Scheme+"://"+parsed.Host)]
	return ok
}

// ServeHTTP authenticates the request, upgrades it and runs the session
// until the client goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticator.Authenticate(r.Context(), tokenFromRequest(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := newSession(uuid.NewString(), identity, conn, s.hub)
	s.hub.register(session)
	session.send(events.EventConnected, events.ConnectedPayload{ConnectionID: session.id})
	session.logger.Info("realtime connection opened", zap.Int64("company_id", identity.CompanyID))

	go session.writePump()

	// Room cleanup must finish even though the request context ends with the
	// connection.
	ctx := context.WithoutCancel(r.Context())
	session.readPump(ctx)
	s.hub.unregister(ctx, session)
	session.logger.Info("realtime connection closed")
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
