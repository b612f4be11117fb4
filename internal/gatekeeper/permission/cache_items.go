package permission

import "time"

const (
	UserRoleCacheTTL       = time.Hour
	RolePermissionCacheTTL = 2 * time.Hour
	UserPermissionCacheTTL = time.Hour
)

// UserRoleCacheItem holds the role ids of a user.
type UserRoleCacheItem struct {
	UserID  string   `json:"userId"`
	RoleIDs []string `json:"roleIds"`
}

func UserRoleCacheKey(userID string) string { return "UserRoles:u" + userID }

// RolePermissionCacheItem holds the effective grants of a role.
type RolePermissionCacheItem struct {
	RoleID      string   `json:"roleId"`
	Permissions []string `json:"permissions"`
}

func RolePermissionCacheKey(roleID string) string { return "RolePermissions:r" + roleID }

// UserPermissionCacheItem holds the user level overrides, split by
// direction.
type UserPermissionCacheItem struct {
	UserID                string   `json:"userId"`
	Permissions           []string `json:"permissions"`
	ProhibitedPermissions []string `json:"prohibitedPermissions"`
}

func UserPermissionCacheKey(userID string) string { return "UserPermissions:u" + userID }
