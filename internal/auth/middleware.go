package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// Authenticator resolves raw bearer tokens into identities. It is shared by
// the HTTP middleware and the realtime listener.
type Authenticator struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthenticator constructs an authenticator.
func NewAuthenticator(tokens *TokenManager, users repository.UserRepository) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate verifies the token and confirms the user still exists in the
// company it claims. The stored profile wins over the claims so role or area
// changes take effect before the token expires.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*domain.Identity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.NewUnauthorized("missing token")
	}
	claims, err := a.tokens.ParseToken(rawToken)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	user, err := a.users.GetByID(ctx, claims.CompanyID, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	return user.Identity(), nil
}

// AuthMiddleware validates bearer tokens and stores the caller identity.
type AuthMiddleware struct {
	authenticator *Authenticator
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(authenticator *Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	identity, err := m.authenticator.Authenticate(c.UserContext(), parts[1])
	if err != nil {
		return err
	}

	c.Locals(identityKey, identity)
	return c.Next()
}

// IdentityFromContext retrieves the authenticated caller.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	identity, ok := val.(*domain.Identity)
	return identity, ok && identity != nil
}
