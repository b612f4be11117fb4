package domain

import "time"

// Permission is a named capability from the static catalog.
type Permission struct {
	Name        string
	DisplayName string
	Group       string
}

// PermissionOverride grants or prohibits a single permission for exactly
// one of a user or a role.
type PermissionOverride struct {
	ID        string
	Name      string
	UserID    string // empty for role overrides
	RoleID    string // empty for user overrides
	IsGranted bool
	CreatedAt time.Time
}
