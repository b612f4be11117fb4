// Package permission resolves the effective permission set of users and
// roles and keeps the derived cache entries behind it.
package permission

import (
	"fmt"
	"slices"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

// Permission names known to the service.
const (
	Roles       = "Pages.Administration.Roles"
	RolesCreate = "Pages.Administration.Roles.Create"
	RolesEdit   = "Pages.Administration.Roles.Edit"
	RolesDelete = "Pages.Administration.Roles.Delete"

	Users                  = "Pages.Administration.Users"
	UsersCreate            = "Pages.Administration.Users.Create"
	UsersEdit              = "Pages.Administration.Users.Edit"
	UsersDelete            = "Pages.Administration.Users.Delete"
	UsersChangePermissions = "Pages.Administration.Users.ChangePermissions"
)

const (
	GroupRoles = "Roles"
	GroupUsers = "Users"
)

// Catalog is the immutable registry of every permission. It is built once
// at start-up and shared by reference.
type Catalog struct {
	perms  []domain.Permission
	byName map[string]domain.Permission
}

// NewCatalog registers perms in order. It panics on an empty or duplicate
// name since the catalog is assembled from constants.
func NewCatalog(perms ...domain.Permission) *Catalog {
	c := &Catalog{
		perms:  make([]domain.Permission, 0, len(perms)),
		byName: make(map[string]domain.Permission, len(perms)),
	}
	for _, p := range perms {
		if p.Name == "" {
			panic("permission: empty permission name")
		}
		if _, dup := c.byName[p.Name]; dup {
			panic(fmt.Sprintf("permission: duplicate permission %q", p.Name))
		}
		c.perms = append(c.perms, p)
		c.byName[p.Name] = p
	}
	return c
}

// DefaultCatalog returns the administration permissions.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		domain.Permission{Name: Roles, DisplayName: "View roles", Group: GroupRoles},
		domain.Permission{Name: RolesCreate, DisplayName: "Create role", Group: GroupRoles},
		domain.Permission{Name: RolesEdit, DisplayName: "Edit role", Group: GroupRoles},
		domain.Permission{Name: RolesDelete, DisplayName: "Delete role", Group: GroupRoles},

		domain.Permission{Name: Users, DisplayName: "View users", Group: GroupUsers},
		domain.Permission{Name: UsersCreate, DisplayName: "Create user", Group: GroupUsers},
		domain.Permission{Name: UsersEdit, DisplayName: "Edit user", Group: GroupUsers},
		domain.Permission{Name: UsersDelete, DisplayName: "Delete user", Group: GroupUsers},
		domain.Permission{Name: UsersChangePermissions, DisplayName: "Change user permissions", Group: GroupUsers},
	)
}

// All returns every permission in registration order.
func (c *Catalog) All() []domain.Permission { return slices.Clone(c.perms) }

// Names returns every permission name in registration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.perms))
	for i, p := range c.perms {
		names[i] = p.Name
	}
	return names
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

func (c *Catalog) Get(name string) (domain.Permission, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// Groups returns the group names in order of first appearance.
func (c *Catalog) Groups() []string {
	var groups []string
	for _, p := range c.perms {
		if !slices.Contains(groups, p.Group) {
			groups = append(groups, p.Group)
		}
	}
	return groups
}

// Set returns the whole catalog as a Set.
func (c *Catalog) Set() Set { return NewSet(c.Names()...) }
