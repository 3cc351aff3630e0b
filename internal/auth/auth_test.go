package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func seedAdmin(t *testing.T, store *repository.MemoryStore) *domain.User {
	t.Helper()
	admin := &domain.User{FullName: "Ana Admin", Username: "ana", Role: domain.RoleAdmin, Area: domain.AreaSupport}
	require.NoError(t, store.Companies().RegisterWithAdmin(context.Background(), &domain.Company{Name: "Acme"}, admin))
	return admin
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	identity := &domain.Identity{UserID: 7, FullName: "Ana", Role: domain.RoleStandard, Area: domain.AreaAccounting, CompanyID: 3}

	token, exp, err := tm.GenerateToken(identity)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity.UserID, claims.UserID)
	assert.Equal(t, identity.FullName, claims.FullName)
	assert.Equal(t, identity.Role, claims.Role)
	assert.Equal(t, identity.Area, claims.Area)
	assert.Equal(t, identity.CompanyID, claims.CompanyID)
	assert.Equal(t, "7", claims.Subject)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)
	_, err = tm.ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestTokenManager_RejectsIncompleteIdentity(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken(&domain.Identity{UserID: 7, Role: "Root", Area: domain.AreaSupport, CompanyID: 1})
	require.NoError(t, err)

	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short", 4)
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("long-enough", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "long-enough"))
	assert.Error(t, ComparePassword(hash, "long-enougH"))

	// Out of range costs fall back to the default.
	hash, err = HashPassword("long-enough", 99)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "long-enough"))
}

func TestAuthenticator_UsesStoredProfile(t *testing.T) {
	store := repository.NewMemoryStore()
	admin := seedAdmin(t, store)
	tm := NewTokenManager("secret", 5)
	authenticator := NewAuthenticator(tm, store.Users())

	stale := admin.Identity()
	stale.Role = domain.RoleStandard
	token, _, err := tm.GenerateToken(stale)
	require.NoError(t, err)

	identity, err := authenticator.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, identity.Role)

	ghost := admin.Identity()
	ghost.UserID = 999
	token, _, err = tm.GenerateToken(ghost)
	require.NoError(t, err)
	_, err = authenticator.Authenticate(context.Background(), token)
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))

	_, err = authenticator.Authenticate(context.Background(), " ")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}

func TestMiddleware(t *testing.T) {
	store := repository.NewMemoryStore()
	admin := seedAdmin(t, store)
	standard := &domain.User{FullName: "Sam", Username: "sam", Role: domain.RoleStandard, Area: domain.AreaSupport, CompanyID: admin.CompanyID}
	require.NoError(t, store.Users().Create(context.Background(), standard))

	tm := NewTokenManager("secret", 5)
	mw := NewAuthMiddleware(NewAuthenticator(tm, store.Users()))

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		require.True(t, ok)
		return c.SendString(identity.FullName)
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	tokenFor := func(user *domain.User) string {
		token, _, err := tm.GenerateToken(user.Identity())
		require.NoError(t, err)
		return token
	}

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "missing header", path: "/me", status: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/me", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "bad token", path: "/me", header: "Bearer abc", status: http.StatusUnauthorized},
		{name: "valid token", path: "/me", header: "Bearer " + tokenFor(standard), status: http.StatusOK},
		{name: "standard on admin route", path: "/admin", header: "Bearer " + tokenFor(standard), status: http.StatusForbidden},
		{name: "admin on admin route", path: "/admin", header: "bearer " + tokenFor(admin), status: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
