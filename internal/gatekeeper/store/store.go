package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned by optimistic updates when the row version no
	// longer matches, meaning someone else wrote it first.
	ErrConflict = errors.New("store: version conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it. Repositories are exposed as methods so a Tx can
// hand out the same repositories bound to its transaction.
type Store interface {
	Users() Users
	Roles() Roles
	UserRoles() UserRoles
	PermissionOverrides() PermissionOverrides
	UserTokens() UserTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. Nested calls on a Tx reuse the outer
	// transaction.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// ListQuery pages and filters list endpoints. A zero Limit returns every
// matching row.
type ListQuery struct {
	Filter string
	Offset int
	Limit  int
}

type Roles interface {
	Create(ctx context.Context, r domain.Role) error
	GetByID(ctx context.Context, id string) (domain.Role, error)
	GetByNormalizedName(ctx context.Context, normalized string) (domain.Role, error)

	// GetDefaults returns every role flagged IsDefault.
	GetDefaults(ctx context.Context) ([]domain.Role, error)

	// List returns a page of roles ordered by id along with the total count
	// of rows matching the filter.
	List(ctx context.Context, q ListQuery) ([]domain.Role, int, error)

	// Update writes r if its stored version still equals r.Version and
	// bumps the version. Returns ErrConflict otherwise.
	Update(ctx context.Context, r domain.Role) error

	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type Users interface {
	Create(ctx context.Context, u domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByNormalizedUserName(ctx context.Context, normalized string) (domain.User, error)
	GetByNormalizedEmail(ctx context.Context, normalized string) (domain.User, error)
	List(ctx context.Context, q ListQuery) ([]domain.User, int, error)

	// Update is optimistic on Version, like Roles.Update.
	Update(ctx context.Context, u domain.User) error

	// UpdateLockout records sign-in failures without touching Version so a
	// concurrent admin edit is never rejected because of a login attempt.
	UpdateLockout(ctx context.Context, id string, accessFailedCount int, lockoutEnd *time.Time) error

	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type UserRoles interface {
	// ListRoles returns the non-deleted roles of a user.
	ListRoles(ctx context.Context, userID string) ([]domain.Role, error)
	ListRoleIDs(ctx context.Context, userID string) ([]string, error)
	ListUserIDs(ctx context.Context, roleID string) ([]string, error)
	Add(ctx context.Context, userID, roleID string) error
	Remove(ctx context.Context, userID, roleID string) error
	RemoveAllForRole(ctx context.Context, roleID string) error
}

type PermissionOverrides interface {
	ListForRole(ctx context.Context, roleID string) ([]domain.PermissionOverride, error)
	ListForUser(ctx context.Context, userID string) ([]domain.PermissionOverride, error)
	Insert(ctx context.Context, o domain.PermissionOverride) error
	DeleteRoleOverride(ctx context.Context, roleID, name string) error
	DeleteUserOverride(ctx context.Context, userID, name string) error
	DeleteAllForRole(ctx context.Context, roleID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

type UserTokens interface {
	Create(ctx context.Context, t domain.UserToken) error
	Get(ctx context.Context, userID, loginProvider, name string) (domain.UserToken, error)

	// ExistsValid reports whether a row for the key exists and expires
	// after now.
	ExistsValid(ctx context.Context, userID, name string, now time.Time) (bool, error)

	Delete(ctx context.Context, userID, loginProvider, name string) error
	DeleteForUser(ctx context.Context, userID string) error

	// DeleteExpired removes rows that expired at or before now and reports
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
