package permission

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
)

// Changes are the override rows needed to move a scope from one effective
// set to another. Every slice is sorted.
type Changes struct {
	ToDeleteOverride []string
	ToInsertProhibit []string
	ToInsertGrant    []string
}

func (c Changes) Empty() bool {
	return len(c.ToDeleteOverride) == 0 && len(c.ToInsertProhibit) == 0 && len(c.ToInsertGrant) == 0
}

// Diff compares the current effective set with the requested one.
// inherited reports whether the layer below the scope grants a name: the
// roles of a user, or the role default for a role.
//
// A removed name loses its override row and is prohibited when inherited.
// An added name loses its override row and is granted when not inherited.
func Diff(old, requested Set, inherited func(string) bool) Changes {
	var c Changes
	for name := range old {
		if requested.Has(name) {
			continue
		}
		c.ToDeleteOverride = append(c.ToDeleteOverride, name)
		if inherited(name) {
			c.ToInsertProhibit = append(c.ToInsertProhibit, name)
		}
	}
	for name := range requested {
		if old.Has(name) {
			continue
		}
		c.ToDeleteOverride = append(c.ToDeleteOverride, name)
		if !inherited(name) {
			c.ToInsertGrant = append(c.ToInsertGrant, name)
		}
	}

	slices.Sort(c.ToDeleteOverride)
	slices.Sort(c.ToInsertProhibit)
	slices.Sort(c.ToInsertGrant)
	return c
}

// ApplyToUser writes c as user level overrides. Run it inside a
// transaction.
func (c Changes) ApplyToUser(ctx context.Context, o store.PermissionOverrides, userID string, now time.Time) error {
	for _, name := range c.ToDeleteOverride {
		if err := o.DeleteUserOverride(ctx, userID, name); err != nil {
			return fmt.Errorf("permission: delete user override %q: %w", name, err)
		}
	}
	return c.insert(ctx, o, domain.PermissionOverride{UserID: userID, CreatedAt: now})
}

// ApplyToRole writes c as role level overrides. Run it inside a
// transaction.
func (c Changes) ApplyToRole(ctx context.Context, o store.PermissionOverrides, roleID string, now time.Time) error {
	for _, name := range c.ToDeleteOverride {
		if err := o.DeleteRoleOverride(ctx, roleID, name); err != nil {
			return fmt.Errorf("permission: delete role override %q: %w", name, err)
		}
	}
	return c.insert(ctx, o, domain.PermissionOverride{RoleID: roleID, CreatedAt: now})
}

func (c Changes) insert(ctx context.Context, o store.PermissionOverrides, base domain.PermissionOverride) error {
	write := func(name string, granted bool) error {
		row := base
		row.ID = idx.New().String()
		row.Name = name
		row.IsGranted = granted
		if err := o.Insert(ctx, row); err != nil {
			return fmt.Errorf("permission: insert override %q: %w", name, err)
		}
		return nil
	}

	for _, name := range c.ToInsertProhibit {
		if err := write(name, false); err != nil {
			return err
		}
	}
	for _, name := range c.ToInsertGrant {
		if err := write(name, true); err != nil {
			return err
		}
	}
	return nil
}
