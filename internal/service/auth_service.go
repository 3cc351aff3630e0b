package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AuthService coordinates company registration and login flows.
type AuthService struct {
	companies  repository.CompanyRepository
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	clock      clock.Clock
	bcryptCost int
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	CompanyRepo repository.CompanyRepository
	UserRepo    repository.UserRepository
	Clock       clock.Clock
}

// RegisterCompanyInput is a new tenant and its first administrator.
type RegisterCompanyInput struct {
	CompanyName string
	FullName    string
	Username    string
	Password    string
	Area        string
}

// Session is the result of a successful registration or login.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &AuthService{
		companies:  deps.CompanyRepo,
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		clock:      deps.Clock,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// RegisterCompany creates the company and its first Administrador in one
// transaction and signs the administrator in.
func (s *AuthService) RegisterCompany(ctx context.Context, input RegisterCompanyInput) (*Session, error) {
	companyName := strings.TrimSpace(input.CompanyName)
	if companyName == "" {
		return nil, apperrors.NewMissingField("companyName")
	}
	admin, err := s.newUser(NewUserInput{
		FullName: input.FullName,
		Username: input.Username,
		Password: input.Password,
		Role:     string(domain.RoleAdmin),
		Area:     input.Area,
	})
	if err != nil {
		return nil, err
	}

	company := &domain.Company{Name: companyName, CreatedAt: admin.CreatedAt}
	if err := s.companies.RegisterWithAdmin(ctx, company, admin); err != nil {
		if apperrors.IsCode(apperrors.MapError(err), "CONFLICT") {
			return nil, apperrors.NewConflict("company name or username already taken", nil)
		}
		return nil, err
	}
	return s.issue(admin)
}

// Login verifies username and password.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.NewValidationError("username and password are required", nil)
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// Company returns the caller's company.
func (s *AuthService) Company(ctx context.Context, identity *domain.Identity) (*domain.Company, error) {
	company, err := s.companies.GetByID(ctx, identity.CompanyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("company not found")
		}
		return nil, err
	}
	return company, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.Identity())
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

// newUser validates input and builds an unsaved user with a hashed password.
func (s *AuthService) newUser(input NewUserInput) (*domain.User, error) {
	fullName := strings.TrimSpace(input.FullName)
	username := strings.TrimSpace(input.Username)
	switch {
	case fullName == "":
		return nil, apperrors.NewMissingField("fullName")
	case username == "":
		return nil, apperrors.NewMissingField("username")
	case input.Password == "":
		return nil, apperrors.NewMissingField("password")
	}

	role := domain.Role(strings.TrimSpace(input.Role))
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"field": "role", "value": input.Role})
	}
	area := domain.Area(strings.TrimSpace(input.Area))
	if !area.Valid() {
		return nil, apperrors.NewValidationError("unknown area", map[string]any{"field": "area", "value": input.Area})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, apperrors.NewValidationError("password too short", map[string]any{
				"field":     "password",
				"minLength": auth.MinPasswordLength,
			})
		}
		return nil, err
	}

	now := s.clock.Now()
	return &domain.User{
		FullName:     fullName,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Area:         area,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
