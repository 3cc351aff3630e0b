package domain

import "time"

// Role is the privilege level of a user inside their company.
type Role string

const (
	RoleAdmin    Role = "Administrador"
	RoleStandard Role = "Estándar"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStandard
}

// Company is a tenant. Every user, ticket and message belongs to exactly one.
type Company struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// User is an account inside a company.
type User struct {
	ID           int64
	FullName     string
	Username     string
	PasswordHash string
	Role         Role
	Area         Area
	CompanyID    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the authorization view of the user.
func (u *User) Identity() *Identity {
	return &Identity{
		UserID:    u.ID,
		FullName:  u.FullName,
		Role:      u.Role,
		Area:      u.Area,
		CompanyID: u.CompanyID,
	}
}
