package permission

import (
	"context"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
)

// Manager answers permission checks, from the cache when every entry it
// needs is present and from the store otherwise.
type Manager struct {
	resolver *Resolver
	cache    cache.Store
	metrics  *metrics.Metrics
}

func NewManager(r *Resolver, c cache.Store, m *metrics.Metrics) *Manager {
	return &Manager{resolver: r, cache: c, metrics: m}
}

// GetGrantedPermissions returns the effective permissions of a user.
func (m *Manager) GetGrantedPermissions(ctx context.Context, userID string) (Set, error) {
	if granted, ok := m.fromCache(ctx, userID); ok {
		m.metrics.PermissionResolution(metrics.SourceCache)
		return granted, nil
	}

	m.metrics.PermissionResolution(metrics.SourceStore)
	return m.resolver.SetUserPermission(ctx, userID)
}

func (m *Manager) IsGranted(ctx context.Context, userID, name string) (bool, error) {
	granted, err := m.GetGrantedPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return granted.Has(name), nil
}

// fromCache merges the cached entries. A single missing role entry voids
// the whole result, a partial merge could under-report grants.
func (m *Manager) fromCache(ctx context.Context, userID string) (Set, bool) {
	roles, ok := cacheGet[UserRoleCacheItem](ctx, m.cache, UserRoleCacheKey(userID))
	if !ok {
		return nil, false
	}

	granted, prohibited := NewSet(), NewSet()
	if up, ok := cacheGet[UserPermissionCacheItem](ctx, m.cache, UserPermissionCacheKey(userID)); ok {
		granted.Add(up.Permissions...)
		prohibited.Add(up.ProhibitedPermissions...)
	}

	for _, roleID := range roles.RoleIDs {
		rp, ok := cacheGet[RolePermissionCacheItem](ctx, m.cache, RolePermissionCacheKey(roleID))
		if !ok {
			return nil, false
		}
		granted.Merge(NewSet(rp.Permissions...), prohibited)
	}
	return granted, true
}
