package gatekeepersdk

import "time"

// AuthenticateRequest is the body of POST /api/v1/identities/authenticate.
type AuthenticateRequest struct {
	UserNameOrEmailAddress string `json:"usernameOrEmailAddress"`
	Password               string `json:"password"`
}

// AuthenticateResponse holds a fresh token pair. Lifetimes are in seconds.
type AuthenticateResponse struct {
	AccessToken                 string `json:"accessToken"`
	ExpireInSeconds             int    `json:"expireInSeconds"`
	RefreshToken                string `json:"refreshToken"`
	RefreshTokenExpireInSeconds int    `json:"refreshTokenExpireInSeconds"`
}

// RefreshTokenRequest is the body of POST /api/v1/identities/refresh-token.
type RefreshTokenRequest struct {
	Token string `json:"token"`
}

// RefreshTokenResponse holds a new access token bound to the same refresh
// token.
type RefreshTokenResponse struct {
	AccessToken     string `json:"accessToken"`
	ExpireInSeconds int    `json:"expireInSeconds"`
}

// SessionUser is the caller's profile in CurrentSessionResponse.
type SessionUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	UserName  string `json:"userName"`
	Email     string `json:"email"`
}

// CurrentSessionResponse describes the caller. User is nil for anonymous
// callers. Both permission maps hold true for every listed name.
type CurrentSessionResponse struct {
	User               *SessionUser    `json:"user"`
	AllPermissions     map[string]bool `json:"allPermissions"`
	GrantedPermissions map[string]bool `json:"grantedPermissions"`
}

// User is a user as returned by the administration endpoints.
type User struct {
	ID                   string    `json:"id"`
	UserName             string    `json:"userName"`
	FirstName            string    `json:"firstName"`
	LastName             string    `json:"lastName"`
	Email                string    `json:"email"`
	Roles                []string  `json:"roles"`
	CreationTime         time.Time `json:"creationTime"`
	LastModificationTime time.Time `json:"lastModificationTime"`
}

// CreateOrEditUser is the body of POST and PUT /api/v1/user. ID is empty on
// create. A nil Roles on update leaves memberships unchanged. Password is
// optional on update.
type CreateOrEditUser struct {
	ID              string   `json:"id,omitempty"`
	UserName        string   `json:"userName"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Email           string   `json:"email"`
	Password        string   `json:"password,omitempty"`
	ConfirmPassword string   `json:"confirmPassword,omitempty"`
	Roles           []string `json:"roles"`
}

// UserResult wraps a single user.
type UserResult struct {
	User User `json:"user"`
}

// Role is a role as returned by the administration endpoints.
// GrantedPermissions is only filled by the single role lookup.
type Role struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	IsStatic             bool      `json:"isStatic"`
	IsDefault            bool      `json:"isDefault"`
	GrantedPermissions   []string  `json:"grantedPermissions,omitempty"`
	CreationTime         time.Time `json:"creationTime"`
	LastModificationTime time.Time `json:"lastModificationTime"`
}

// CreateOrEditRole is the body of POST and PUT /api/v1/role.
type CreateOrEditRole struct {
	ID                 string   `json:"id,omitempty"`
	Name               string   `json:"name"`
	IsDefault          bool     `json:"isDefault"`
	GrantedPermissions []string `json:"grantedPermissions"`
}

// RoleResult wraps a single role.
type RoleResult struct {
	Role Role `json:"role"`
}

// PagedResult is one page of a list endpoint.
type PagedResult[T any] struct {
	TotalCount int `json:"totalCount"`
	Items      []T `json:"items"`
}

// PermissionsResponse lists the permissions granted to a user or role.
type PermissionsResponse struct {
	Items []string `json:"items"`
}

// ListOptions are the query parameters of the list endpoints. A zero
// MaxResultCount lets the server pick its default page size.
type ListOptions struct {
	Filter         string
	SkipCount      int
	MaxResultCount int
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}
