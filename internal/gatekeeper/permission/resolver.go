package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"golang.org/x/sync/errgroup"
)

// roleFanout bounds concurrent role resolutions on the store path.
const roleFanout = 4

// Resolver computes effective permission sets from the store and writes
// them to the cache.
type Resolver struct {
	store   store.Store
	cache   cache.Store
	catalog *Catalog
}

func NewResolver(s store.Store, c cache.Store, catalog *Catalog) *Resolver {
	return &Resolver{store: s, cache: c, catalog: catalog}
}

// ValidatePermissions rejects names outside the catalog.
func (r *Resolver) ValidatePermissions(names []string) error {
	invalid := 0
	for _, n := range names {
		if !r.catalog.Has(n) {
			invalid++
		}
	}
	if invalid > 0 {
		return domain.BadRequest("There are %d invalid permissions", invalid)
	}
	return nil
}

// SetRolePermission computes the grants of a role and caches them. The
// admin role holds the whole catalog minus its prohibitions, every other
// role holds only its explicit grants.
func (r *Resolver) SetRolePermission(ctx context.Context, roleID string) (Set, error) {
	role, err := r.store.Roles().GetByID(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.BadRequest("Role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("permission: load role: %w", err)
	}

	rows, err := r.store.PermissionOverrides().ListForRole(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("permission: list role overrides: %w", err)
	}

	var granted Set
	if role.IsAdmin() {
		granted = r.catalog.Set()
		for _, o := range rows {
			if !o.IsGranted {
				delete(granted, o.Name)
			}
		}
	} else {
		granted = NewSet()
		for _, o := range rows {
			if o.IsGranted {
				granted.Add(o.Name)
			}
		}
	}

	cacheSet(ctx, r.cache, RolePermissionCacheKey(role.ID), RolePermissionCacheItem{
		RoleID:      role.ID,
		Permissions: granted.Names(),
	}, RolePermissionCacheTTL)

	return granted, nil
}

// SetUserPermission computes the effective permissions of a user and
// refreshes the role id and user override cache entries on the way.
func (r *Resolver) SetUserPermission(ctx context.Context, userID string) (Set, error) {
	if err := r.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	roleIDs, err := r.RoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := r.store.PermissionOverrides().ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("permission: list user overrides: %w", err)
	}

	granted, prohibited := NewSet(), NewSet()
	for _, o := range rows {
		if o.IsGranted {
			granted.Add(o.Name)
		} else {
			prohibited.Add(o.Name)
		}
	}

	cacheSet(ctx, r.cache, UserPermissionCacheKey(userID), UserPermissionCacheItem{
		UserID:                userID,
		Permissions:           granted.Names(),
		ProhibitedPermissions: prohibited.Names(),
	}, UserPermissionCacheTTL)

	roleSets, err := r.roleSets(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	result := granted
	for _, s := range roleSets {
		result.Merge(s, prohibited)
	}
	return result, nil
}

// InheritedForUser returns the union of the effective sets of the user's
// roles, ignoring user level overrides.
func (r *Resolver) InheritedForUser(ctx context.Context, userID string) (Set, error) {
	roleIDs, err := r.RoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	roleSets, err := r.roleSets(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	inherited := NewSet()
	for _, s := range roleSets {
		inherited.Merge(s, nil)
	}
	return inherited, nil
}

// DefaultForRole is what a role holds without any override row.
func (r *Resolver) DefaultForRole(role domain.Role) Set {
	if role.IsAdmin() {
		return r.catalog.Set()
	}
	return NewSet()
}

// RoleIDs returns the role ids of a user from the cache, or from the store
// followed by a cache write.
func (r *Resolver) RoleIDs(ctx context.Context, userID string) ([]string, error) {
	if item, ok := cacheGet[UserRoleCacheItem](ctx, r.cache, UserRoleCacheKey(userID)); ok {
		return item.RoleIDs, nil
	}

	ids, err := r.store.UserRoles().ListRoleIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("permission: list user roles: %w", err)
	}

	cacheSet(ctx, r.cache, UserRoleCacheKey(userID), UserRoleCacheItem{
		UserID:  userID,
		RoleIDs: ids,
	}, UserRoleCacheTTL)

	return ids, nil
}

// RemoveUserRoleCache forgets the cached role ids of a user. Call it after
// any membership change.
func (r *Resolver) RemoveUserRoleCache(ctx context.Context, userID string) error {
	if err := r.cache.Delete(ctx, UserRoleCacheKey(userID)); err != nil {
		return fmt.Errorf("permission: evict user roles: %w", err)
	}
	return nil
}

// RemoveRolePermissionCache forgets the cached grants of a role.
func (r *Resolver) RemoveRolePermissionCache(ctx context.Context, roleID string) error {
	if err := r.cache.Delete(ctx, RolePermissionCacheKey(roleID)); err != nil {
		return fmt.Errorf("permission: evict role permissions: %w", err)
	}
	return nil
}

// RemoveUserCache forgets every permission entry of a user.
func (r *Resolver) RemoveUserCache(ctx context.Context, userID string) error {
	if err := r.cache.Delete(ctx, UserRoleCacheKey(userID), UserPermissionCacheKey(userID)); err != nil {
		return fmt.Errorf("permission: evict user permissions: %w", err)
	}
	return nil
}

func (r *Resolver) requireUser(ctx context.Context, userID string) error {
	_, err := r.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.BadRequest("User not found")
	}
	if err != nil {
		return fmt.Errorf("permission: load user: %w", err)
	}
	return nil
}

// roleSets resolves the roles concurrently. The result keeps the order of
// ids. A role id that no longer resolves, typically one deleted after the
// ids were cached, contributes nothing and is logged. Failing the whole
// resolution over it would lock the user out until the role cache expires.
func (r *Resolver) roleSets(ctx context.Context, roleIDs []string) ([]Set, error) {
	sets := make([]Set, len(roleIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(roleFanout)
	for i, id := range roleIDs {
		g.Go(func() error {
			s, err := r.SetRolePermission(gctx, id)
			if errors.Is(err, domain.ErrBadRequest) {
				slogx.FromContext(ctx).Warn("skipping missing role", slog.String("role_id", id))
				return nil
			}
			if err != nil {
				return err
			}
			sets[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

// cacheGet reads a typed entry. Cache failures are logged and read as a
// miss.
func cacheGet[T any](ctx context.Context, c cache.Store, key string) (T, bool) {
	v, ok, err := cache.Get[T](ctx, c, key)
	if err != nil {
		slogx.FromContext(ctx).Warn("cache read failed, falling back to store",
			slog.String("key", key), slogx.Err(err))
		var zero T
		return zero, false
	}
	return v, ok
}

func cacheSet[T any](ctx context.Context, c cache.Store, key string, v T, ttl time.Duration) {
	if err := cache.Set(ctx, c, key, v, ttl); err != nil {
		slogx.FromContext(ctx).Warn("cache write failed",
			slog.String("key", key), slogx.Err(err))
	}
}
