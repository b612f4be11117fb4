package domain

import (
	"strings"
	"time"
)

// Field limits shared by validation and the schema.
const (
	MaxUserNameLength  = 256
	MaxEmailLength     = 256
	MaxFirstNameLength = 64
	MaxLastNameLength  = 64
)

// Well-known seeded accounts.
const (
	AdminUserName = "admin"
	UserUserName  = "user"
)

type User struct {
	ID                 string
	UserName           string
	NormalizedUserName string
	Email              string
	NormalizedEmail    string
	FirstName          string
	LastName           string
	PasswordHash       string // argon2id PHC string
	SecurityStamp      string

	AccessFailedCount int
	LockoutEnd        *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsLockedOut reports whether a lockout is active at now.
func (u User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

// IsAdmin reports whether u is the seeded administrator account.
func (u User) IsAdmin() bool {
	return u.NormalizedUserName == Normalize(AdminUserName)
}

// Normalize is the canonical form used for case-insensitive lookups.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
