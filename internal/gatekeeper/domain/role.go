package domain

import "time"

// Static role names created by the seeder.
const (
	AdminRoleName = "Admin"
	UserRoleName  = "User"
)

type Role struct {
	ID             string
	Name           string
	NormalizedName string

	// IsStatic roles cannot be renamed or deleted.
	IsStatic bool

	// IsDefault roles are assigned to users created without explicit roles.
	IsDefault bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsAdmin reports whether r is the administrator role, which is granted the
// whole permission catalog unless explicitly prohibited.
func (r Role) IsAdmin() bool {
	return r.NormalizedName == Normalize(AdminRoleName)
}

// UserRole links a user to a role.
type UserRole struct {
	UserID string
	RoleID string
}
