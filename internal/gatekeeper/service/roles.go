package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/permission"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	msgInvalidRoleID = "Invalid role id"
	msgRoleNotFound  = "Role not found"
)

// RoleInput is the payload of role create and update. GrantedPermissions
// is the effective set the role should end up with.
type RoleInput struct {
	ID                 string
	Name               string
	IsDefault          bool
	GrantedPermissions []string
}

type RoleService struct {
	Store       store.Store
	Permissions *permission.Resolver

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *RoleService) List(ctx context.Context, req ListRequest) (Page[domain.Role], error) {
	if err := req.validate(); err != nil {
		return Page[domain.Role]{}, err
	}
	roles, total, err := s.Store.Roles().List(ctx, req.query())
	if err != nil {
		return Page[domain.Role]{}, fmt.Errorf("service: list roles: %w", err)
	}
	return Page[domain.Role]{TotalCount: total, Items: roles}, nil
}

func (s *RoleService) Get(ctx context.Context, id string) (domain.Role, error) {
	return s.load(ctx, id)
}

// Create adds a role holding exactly the requested permissions.
func (s *RoleService) Create(ctx context.Context, in RoleInput) (domain.Role, error) {
	if in.ID != "" {
		return domain.Role{}, domain.BadRequest(msgInvalidRoleID)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Role{}, domain.BadRequest("Please enter the name")
	}
	if err := s.Permissions.ValidatePermissions(in.GrantedPermissions); err != nil {
		return domain.Role{}, err
	}

	now := nowFunc(s.Now)
	role := domain.Role{
		ID:             idx.NewAt(now).String(),
		Name:           name,
		NormalizedName: domain.Normalize(name),
		IsDefault:      in.IsDefault,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	changes := permission.Diff(
		s.Permissions.DefaultForRole(role),
		permission.NewSet(in.GrantedPermissions...),
		s.Permissions.DefaultForRole(role).Has,
	)

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Roles().Create(ctx, role); err != nil {
			return err
		}
		return changes.ApplyToRole(ctx, tx.PermissionOverrides(), role.ID, now)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.Role{}, domain.BadRequest("Role name '%s' is already taken.", name)
	}
	if err != nil {
		return domain.Role{}, fmt.Errorf("service: create role: %w", err)
	}

	slogx.FromContext(ctx).Info("role created", slog.String("role_id", role.ID), slog.String("name", role.Name))
	return role, nil
}

// Update renames a role, flips its default flag and moves its grants to
// the requested set. Static roles keep their name.
func (s *RoleService) Update(ctx context.Context, in RoleInput) (domain.Role, error) {
	if strings.TrimSpace(in.ID) == "" {
		return domain.Role{}, domain.BadRequest(msgInvalidRoleID)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Role{}, domain.BadRequest("Please enter the name")
	}
	if err := s.Permissions.ValidatePermissions(in.GrantedPermissions); err != nil {
		return domain.Role{}, err
	}

	var updated domain.Role
	err := retryOnConflict(ctx, func() error {
		role, err := s.load(ctx, in.ID)
		if err != nil {
			return err
		}
		if role.IsStatic && role.NormalizedName != domain.Normalize(name) {
			return domain.BadRequest("You cannot change the name of static role")
		}

		current, err := s.Permissions.SetRolePermission(ctx, role.ID)
		if err != nil {
			return err
		}

		role.Name = name
		role.NormalizedName = domain.Normalize(name)
		role.IsDefault = in.IsDefault
		role.UpdatedAt = nowFunc(s.Now)

		inherited := s.Permissions.DefaultForRole(role)
		changes := permission.Diff(current, permission.NewSet(in.GrantedPermissions...), inherited.Has)

		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Roles().Update(ctx, role); err != nil {
				return err
			}
			return changes.ApplyToRole(ctx, tx.PermissionOverrides(), role.ID, role.UpdatedAt)
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.BadRequest("Role name '%s' is already taken.", name)
		}
		if err != nil {
			return err
		}
		role.Version++
		updated = role
		return nil
	})
	if err != nil {
		return domain.Role{}, err
	}

	if _, err := s.Permissions.SetRolePermission(ctx, updated.ID); err != nil {
		return domain.Role{}, err
	}
	return updated, nil
}

// Delete soft deletes a non static role after removing its members.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	role, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if role.IsStatic {
		return domain.BadRequest("You cannot delete static role!")
	}

	members, err := s.Store.UserRoles().ListUserIDs(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("service: list role members: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.UserRoles().RemoveAllForRole(ctx, role.ID); err != nil {
			return err
		}
		if err := tx.PermissionOverrides().DeleteAllForRole(ctx, role.ID); err != nil {
			return err
		}
		return tx.Roles().SoftDelete(ctx, role.ID, nowFunc(s.Now))
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFound(msgRoleNotFound)
	}
	if err != nil {
		return fmt.Errorf("service: delete role: %w", err)
	}

	for _, userID := range members {
		if err := s.Permissions.RemoveUserRoleCache(ctx, userID); err != nil {
			return err
		}
	}
	if err := s.Permissions.RemoveRolePermissionCache(ctx, role.ID); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("role deleted",
		slog.String("role_id", role.ID),
		slog.Int("members", len(members)),
	)
	return nil
}

// GetPermissions returns the effective grants of a role.
func (s *RoleService) GetPermissions(ctx context.Context, id string) ([]string, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	granted, err := s.Permissions.SetRolePermission(ctx, id)
	if err != nil {
		return nil, err
	}
	return granted.Names(), nil
}

// UpdatePermissions makes names the effective grants of a role.
func (s *RoleService) UpdatePermissions(ctx context.Context, id string, names []string) error {
	if names == nil {
		return domain.BadRequest("Invalid permissions")
	}
	if err := s.Permissions.ValidatePermissions(names); err != nil {
		return err
	}
	role, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	current, err := s.Permissions.SetRolePermission(ctx, role.ID)
	if err != nil {
		return err
	}
	changes := permission.Diff(current, permission.NewSet(names...), s.Permissions.DefaultForRole(role).Has)
	if changes.Empty() {
		return nil
	}

	now := nowFunc(s.Now)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return changes.ApplyToRole(ctx, tx.PermissionOverrides(), role.ID, now)
	})
	if err != nil {
		return fmt.Errorf("service: update role permissions: %w", err)
	}

	slogx.FromContext(ctx).Info("role permissions updated",
		slog.String("role_id", role.ID),
		slog.Any("granted", changes.ToInsertGrant),
		slog.Any("prohibited", changes.ToInsertProhibit),
	)

	_, err = s.Permissions.SetRolePermission(ctx, role.ID)
	return err
}

// ResetPermissions drops every override of a role, returning it to its
// default grants.
func (s *RoleService) ResetPermissions(ctx context.Context, id string) error {
	role, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.PermissionOverrides().DeleteAllForRole(ctx, role.ID)
	})
	if err != nil {
		return fmt.Errorf("service: reset role permissions: %w", err)
	}

	_, err = s.Permissions.SetRolePermission(ctx, role.ID)
	return err
}

func (s *RoleService) load(ctx context.Context, id string) (domain.Role, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Role{}, domain.BadRequest(msgInvalidRoleID)
	}
	if !idx.Valid(id) {
		return domain.Role{}, domain.NotFound(msgRoleNotFound)
	}
	r, err := s.Store.Roles().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, domain.NotFound(msgRoleNotFound)
	}
	if err != nil {
		return domain.Role{}, fmt.Errorf("service: load role: %w", err)
	}
	return r, nil
}
