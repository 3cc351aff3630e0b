package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// NewUserInput is an account an administrator adds to their company.
type NewUserInput struct {
	FullName string
	Username string
	Password string
	Role     string
	Area     string
}

// UserService lets administrators manage the accounts of their company.
type UserService struct {
	users  repository.UserRepository
	auth   *AuthService
	logger *zap.Logger
}

// NewUserService builds the service. Password policy is shared with auth.
func NewUserService(users repository.UserRepository, authService *AuthService, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, auth: authService, logger: logger}
}

// Create adds a user to the administrator's company.
func (s *UserService) Create(ctx context.Context, identity *domain.Identity, input NewUserInput) (*domain.User, error) {
	if !identity.IsAdmin() {
		return nil, apperrors.NewForbidden("only administrators manage users")
	}
	user, err := s.auth.newUser(input)
	if err != nil {
		return nil, err
	}
	user.CompanyID = identity.CompanyID
	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.IsCode(apperrors.MapError(err), "CONFLICT") {
			return nil, apperrors.NewConflict("username already taken", map[string]any{"field": "username"})
		}
		return nil, err
	}
	s.logger.Info("user created",
		zap.Int64("company_id", user.CompanyID),
		zap.Int64("user_id", user.ID),
		zap.Int64("created_by", identity.UserID),
	)
	return user, nil
}

// List returns every user of the administrator's company.
func (s *UserService) List(ctx context.Context, identity *domain.Identity) ([]domain.User, error) {
	if !identity.IsAdmin() {
		return nil, apperrors.NewForbidden("only administrators manage users")
	}
	users, err := s.users.ListByCompany(ctx, identity.CompanyID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// Delete removes a standard user of the same company. Administrators cannot
// delete themselves or each other.
func (s *UserService) Delete(ctx context.Context, identity *domain.Identity, userID int64) error {
	if !identity.IsAdmin() {
		return apperrors.NewForbidden("only administrators manage users")
	}
	if userID == identity.UserID {
		return apperrors.NewForbidden("administrators cannot delete themselves")
	}
	target, err := s.users.GetByID(ctx, identity.CompanyID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return err
	}
	if target.Role == domain.RoleAdmin {
		return apperrors.NewForbidden("administrators cannot delete other administrators")
	}
	if err := s.users.Delete(ctx, identity.CompanyID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		if apperrors.IsCode(apperrors.MapError(err), "CONFLICT") {
			return apperrors.NewConflict("user still has tickets or messages", map[string]any{"id": userID})
		}
		return err
	}
	s.logger.Info("user deleted",
		zap.Int64("company_id", identity.CompanyID),
		zap.Int64("user_id", userID),
		zap.Int64("deleted_by", identity.UserID),
	)
	return nil
}
