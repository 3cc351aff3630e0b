package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type published struct {
	Name      events.EventName
	CompanyID int64
	Room      int64
	Exclude   string
	Payload   any
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) PublishToRoom(_ context.Context, companyID, ticketID int64, name events.EventName, payload any, excludeConn string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{Name: name, CompanyID: companyID, Room: ticketID, Exclude: excludeConn, Payload: payload})
	return nil
}

func (b *recordingBus) PublishGlobal(_ context.Context, companyID int64, name events.EventName, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{Name: name, CompanyID: companyID, Payload: payload})
	return nil
}

func (b *recordingBus) named(name events.EventName) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, e := range b.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

type fixture struct {
	store    *repository.MemoryStore
	clock    *clock.Fake
	bus      *recordingBus
	tickets  *TicketService
	messages *MessageService
	auth     *AuthService
	users    *UserService
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	fake := clock.NewFake(baseTime)
	bus := &recordingBus{}

	blobs, err := storage.NewLocalStore(t.TempDir(), "/uploads", 1024)
	require.NoError(t, err)

	tickets := NewTicketService(config.TicketConfig{
		ResolvedRetentionHours: 24,
		DefaultPageSize:        9,
		StrictTransitions:      strict,
	}, TicketDependencies{
		TicketRepo:  store.Tickets(),
		MessageRepo: store.Messages(),
		HistoryRepo: store.History(),
		Bus:         bus,
		Clock:       fake,
		Logger:      zap.NewNop(),
	})
	authService := NewAuthService(config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4}},
		AuthDependencies{CompanyRepo: store.Companies(), UserRepo: store.Users(), Clock: fake})

	return &fixture{
		store:   store,
		clock:   fake,
		bus:     bus,
		tickets: tickets,
		messages: NewMessageService(MessageDependencies{
			Tickets:     tickets,
			MessageRepo: store.Messages(),
			Blobs:       blobs,
			Bus:         bus,
			Clock:       fake,
		}),
		auth:  authService,
		users: NewUserService(store.Users(), authService, zap.NewNop()),
	}
}

// company registers a tenant whose administrator works in Soporte.
func (f *fixture) company(t *testing.T, name string) *domain.Identity {
	t.Helper()
	company := &domain.Company{Name: name, CreatedAt: baseTime}
	admin := &domain.User{
		FullName:  "Admin " + name,
		Username:  "admin-" + name,
		Role:      domain.RoleAdmin,
		Area:      domain.AreaSupport,
		CreatedAt: baseTime,
	}
	require.NoError(t, f.store.Companies().RegisterWithAdmin(context.Background(), company, admin))
	return admin.Identity()
}

func (f *fixture) user(t *testing.T, companyID int64, username string, role domain.Role, area domain.Area) *domain.Identity {
	t.Helper()
	user := &domain.User{
		FullName:  "User " + username,
		Username:  username,
		Role:      role,
		Area:      area,
		CompanyID: companyID,
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.store.Users().Create(context.Background(), user))
	return user.Identity()
}

func (f *fixture) ticket(t *testing.T, creator *domain.Identity, area domain.Area) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.Create(context.Background(), creator, TicketCreateInput{
		Title:          "Printer broken",
		Description:    "Third floor printer jams",
		AssignedToArea: area,
	})
	require.NoError(t, err)
	return ticket
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, code), "want %s, got %v", code, err)
}
