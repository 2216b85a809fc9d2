package domain

// Role is the authorization role carried by a bearer token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller of a core operation.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin returns true if the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
