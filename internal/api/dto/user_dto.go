package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RegisterCompanyRequest payload for a new tenant and its administrator.
type RegisterCompanyRequest struct {
	CompanyName string `json:"companyName"`
	FullName    string `json:"fullName"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Area        string `json:"area"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateUserRequest payload for administrators adding accounts.
type CreateUserRequest struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Area     string `json:"area"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserResponse is an account without its credentials.
type UserResponse struct {
	ID        int64       `json:"userId"`
	FullName  string      `json:"fullName"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	Area      domain.Area `json:"area"`
	CompanyID int64       `json:"companyId"`
	CreatedAt time.Time   `json:"createdAt"`
}

// IdentityResponse echoes the verified caller.
type IdentityResponse struct {
	UserID      int64       `json:"userId"`
	FullName    string      `json:"fullName"`
	Role        domain.Role `json:"role"`
	Area        domain.Area `json:"area"`
	CompanyID   int64       `json:"companyId"`
	CompanyName string      `json:"companyName"`
}
