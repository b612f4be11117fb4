package domain

import "time"

// TokenValidityKeyProvider is the login provider recorded on every issued
// token row.
const TokenValidityKeyProvider = "TokenValidityKeyProvider"

// UserToken backs a single issued token. A token is valid only while its row
// exists and has not expired.
type UserToken struct {
	UserID        string
	LoginProvider string
	Name          string // token validity key
	ExpireDate    time.Time
	CreatedAt     time.Time
}
