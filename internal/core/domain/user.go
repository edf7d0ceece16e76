package domain

import "time"

// Tenant-local user roles. These are unrelated to the client/vendor facet role,
// which is decided per relationship.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User models a human principal belonging to exactly one tenant.
type User struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Email           string    `json:"email"`
	Name            string    `json:"name,omitempty"`
	Role            string    `json:"role"`
	ProviderSubject string    `json:"-"`
	PasswordHash    string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ValidUserRole reports whether role is a known tenant-local role.
func ValidUserRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}
