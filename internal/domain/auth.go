package domain

// Identity is what a verified credential resolves to. All ticket and message
// operations run under one.
type Identity struct {
	UserID    int64
	FullName  string
	Role      Role
	Area      Area
	CompanyID int64
}

// IsAdmin reports whether the caller holds the Administrador role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
