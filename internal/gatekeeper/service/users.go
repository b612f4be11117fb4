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
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/token"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	msgInvalidUserID = "Invalid user id"
	msgUserNotFound  = "User not found"
)

// UserInput is the payload of user create and update. Roles are role
// names. On update a nil Roles leaves memberships alone and an empty
// password keeps the current one.
type UserInput struct {
	ID              string
	UserName        string
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	Roles           []string
}

// UserDetail is a user together with the names of its roles.
type UserDetail struct {
	User  domain.User
	Roles []string
}

type UserService struct {
	Store       store.Store
	Permissions *permission.Resolver
	Issuer      *token.Issuer

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *UserService) List(ctx context.Context, req ListRequest) (Page[UserDetail], error) {
	if err := req.validate(); err != nil {
		return Page[UserDetail]{}, err
	}

	users, total, err := s.Store.Users().List(ctx, req.query())
	if err != nil {
		return Page[UserDetail]{}, fmt.Errorf("service: list users: %w", err)
	}

	items := make([]UserDetail, 0, len(users))
	for _, u := range users {
		d, err := s.detail(ctx, u)
		if err != nil {
			return Page[UserDetail]{}, err
		}
		items = append(items, d)
	}
	return Page[UserDetail]{TotalCount: total, Items: items}, nil
}

func (s *UserService) Get(ctx context.Context, id string) (UserDetail, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	return s.detail(ctx, u)
}

// Create adds a user. Without explicit roles the first default role is
// assigned, or the User role when no role is flagged default.
func (s *UserService) Create(ctx context.Context, in UserInput) (UserDetail, error) {
	if in.ID != "" {
		return UserDetail{}, domain.BadRequest(msgInvalidUserID)
	}
	if err := validateCreatePassword(in); err != nil {
		return UserDetail{}, err
	}
	if err := validateProfile(in); err != nil {
		return UserDetail{}, err
	}
	if err := s.ensureUnique(ctx, "", in.UserName, in.Email); err != nil {
		return UserDetail{}, err
	}

	roles, err := s.rolesForCreate(ctx, in.Roles)
	if err != nil {
		return UserDetail{}, err
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return UserDetail{}, fmt.Errorf("service: hash password: %w", err)
	}

	now := nowFunc(s.Now)
	u := domain.User{
		ID:                 idx.NewAt(now).String(),
		UserName:           strings.TrimSpace(in.UserName),
		NormalizedUserName: domain.Normalize(in.UserName),
		Email:              strings.TrimSpace(in.Email),
		NormalizedEmail:    domain.Normalize(in.Email),
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		PasswordHash:       hash,
		SecurityStamp:      cryptox.NewSecurityStamp(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		for _, r := range roles {
			if err := tx.UserRoles().Add(ctx, u.ID, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return UserDetail{}, domain.BadRequest("Username '%s' or email '%s' is already taken.", u.UserName, u.Email)
	}
	if err != nil {
		return UserDetail{}, fmt.Errorf("service: create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user created", slog.String("user_id", u.ID), slog.String("user_name", u.UserName))

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return UserDetail{User: u, Roles: names}, nil
}

// Update edits the profile, the password and the role memberships of a
// user. A new password rotates the security stamp, which revokes every
// token issued before.
func (s *UserService) Update(ctx context.Context, in UserInput) (UserDetail, error) {
	if strings.TrimSpace(in.ID) == "" {
		return UserDetail{}, domain.BadRequest(msgInvalidUserID)
	}
	if (in.Password != "" || in.ConfirmPassword != "") && in.Password != in.ConfirmPassword {
		return UserDetail{}, domain.BadRequest("Passwords should match")
	}
	if err := validateProfile(in); err != nil {
		return UserDetail{}, err
	}

	var (
		updated         domain.User
		rolesChanged    bool
		passwordChanged bool
	)
	err := retryOnConflict(ctx, func() error {
		u, err := s.load(ctx, in.ID)
		if err != nil {
			return err
		}
		if u.IsAdmin() && domain.Normalize(in.UserName) != u.NormalizedUserName {
			return domain.BadRequest("You cannot change admin's username")
		}
		if err := s.ensureUnique(ctx, u.ID, in.UserName, in.Email); err != nil {
			return err
		}

		u.UserName = strings.TrimSpace(in.UserName)
		u.NormalizedUserName = domain.Normalize(in.UserName)
		u.Email = strings.TrimSpace(in.Email)
		u.NormalizedEmail = domain.Normalize(in.Email)
		u.FirstName = strings.TrimSpace(in.FirstName)
		u.LastName = strings.TrimSpace(in.LastName)
		u.UpdatedAt = nowFunc(s.Now)

		passwordChanged = in.Password != ""
		if passwordChanged {
			hash, err := cryptox.HashPassword(in.Password)
			if err != nil {
				return fmt.Errorf("service: hash password: %w", err)
			}
			u.PasswordHash = hash
			u.SecurityStamp = cryptox.NewSecurityStamp()
		}

		var toAdd, toRemove []domain.Role
		if in.Roles != nil {
			toAdd, toRemove, err = s.membershipChanges(ctx, u.ID, in.Roles)
			if err != nil {
				return err
			}
		}
		rolesChanged = len(toAdd) > 0 || len(toRemove) > 0

		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().Update(ctx, u); err != nil {
				return err
			}
			for _, r := range toAdd {
				if err := tx.UserRoles().Add(ctx, u.ID, r.ID); err != nil {
					return err
				}
			}
			for _, r := range toRemove {
				if err := tx.UserRoles().Remove(ctx, u.ID, r.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.BadRequest("Username '%s' or email '%s' is already taken.", u.UserName, u.Email)
		}
		if err != nil {
			return err
		}
		u.Version++
		updated = u
		return nil
	})
	if err != nil {
		return UserDetail{}, err
	}

	if rolesChanged {
		if err := s.Permissions.RemoveUserRoleCache(ctx, updated.ID); err != nil {
			return UserDetail{}, err
		}
	}
	if passwordChanged {
		if err := s.Issuer.EvictSecurityStamp(ctx, updated.ID); err != nil {
			return UserDetail{}, err
		}
	}

	return s.detail(ctx, updated)
}

// Delete soft deletes a user and drops its tokens. The admin account and
// the caller's own account are protected.
func (s *UserService) Delete(ctx context.Context, id, callerID string) error {
	u, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if u.IsAdmin() {
		return domain.BadRequest("You cannot delete admin account!")
	}
	if u.ID == callerID {
		return domain.BadRequest("You cannot delete your own account!")
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SoftDelete(ctx, u.ID, nowFunc(s.Now)); err != nil {
			return err
		}
		return tx.UserTokens().DeleteForUser(ctx, u.ID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFound(msgUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("service: delete user: %w", err)
	}

	if err := s.Issuer.EvictUser(ctx, u.ID); err != nil {
		return err
	}
	if err := s.Permissions.RemoveUserCache(ctx, u.ID); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("user deleted", slog.String("user_id", u.ID))
	return nil
}

// GetPermissions returns the effective permissions of a user.
func (s *UserService) GetPermissions(ctx context.Context, id string) ([]string, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.BadRequest(msgInvalidUserID)
	}
	granted, err := s.Permissions.SetUserPermission(ctx, id)
	if err != nil {
		return nil, err
	}
	return granted.Names(), nil
}

// UpdatePermissions makes names the effective permission set of a user by
// writing the smallest set of user level overrides on top of its roles.
func (s *UserService) UpdatePermissions(ctx context.Context, id string, names []string) error {
	if strings.TrimSpace(id) == "" {
		return domain.BadRequest(msgInvalidUserID)
	}
	if names == nil {
		return domain.BadRequest("Invalid permissions")
	}
	if err := s.Permissions.ValidatePermissions(names); err != nil {
		return err
	}
	if _, err := s.load(ctx, id); err != nil {
		return err
	}

	current, err := s.Permissions.SetUserPermission(ctx, id)
	if err != nil {
		return err
	}
	inherited, err := s.Permissions.InheritedForUser(ctx, id)
	if err != nil {
		return err
	}

	changes := permission.Diff(current, permission.NewSet(names...), inherited.Has)
	if changes.Empty() {
		return nil
	}

	now := nowFunc(s.Now)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return changes.ApplyToUser(ctx, tx.PermissionOverrides(), id, now)
	})
	if err != nil {
		return fmt.Errorf("service: update user permissions: %w", err)
	}

	slogx.FromContext(ctx).Info("user permissions updated",
		slog.String("user_id", id),
		slog.Any("granted", changes.ToInsertGrant),
		slog.Any("prohibited", changes.ToInsertProhibit),
	)

	_, err = s.Permissions.SetUserPermission(ctx, id)
	return err
}

// ResetPermissions removes every user level override, leaving the user
// with what its roles grant.
func (s *UserService) ResetPermissions(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.BadRequest(msgInvalidUserID)
	}
	if _, err := s.load(ctx, id); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.PermissionOverrides().DeleteAllForUser(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("service: reset user permissions: %w", err)
	}

	_, err = s.Permissions.SetUserPermission(ctx, id)
	return err
}

func (s *UserService) load(ctx context.Context, id string) (domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return domain.User{}, domain.BadRequest(msgInvalidUserID)
	}
	if !idx.Valid(id) {
		return domain.User{}, domain.NotFound(msgUserNotFound)
	}
	u, err := s.Store.Users().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, domain.NotFound(msgUserNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("service: load user: %w", err)
	}
	return u, nil
}

func (s *UserService) detail(ctx context.Context, u domain.User) (UserDetail, error) {
	roles, err := s.Store.UserRoles().ListRoles(ctx, u.ID)
	if err != nil {
		return UserDetail{}, fmt.Errorf("service: list user roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return UserDetail{User: u, Roles: names}, nil
}

// ensureUnique rejects a user name or email held by another user. selfID
// is the user being updated, empty on create.
func (s *UserService) ensureUnique(ctx context.Context, selfID, userName, email string) error {
	other, err := s.Store.Users().GetByNormalizedUserName(ctx, domain.Normalize(userName))
	switch {
	case err == nil && other.ID != selfID:
		return domain.BadRequest("Username '%s' is already taken.", strings.TrimSpace(userName))
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("service: check user name: %w", err)
	}

	other, err = s.Store.Users().GetByNormalizedEmail(ctx, domain.Normalize(email))
	switch {
	case err == nil && other.ID != selfID:
		return domain.BadRequest("Email '%s' is already taken.", strings.TrimSpace(email))
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("service: check email: %w", err)
	}
	return nil
}

func (s *UserService) rolesForCreate(ctx context.Context, names []string) ([]domain.Role, error) {
	if len(names) > 0 {
		return s.rolesByName(ctx, names)
	}

	defaults, err := s.Store.Roles().GetDefaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: default roles: %w", err)
	}
	if len(defaults) > 0 {
		return defaults[:1], nil
	}
	return s.rolesByName(ctx, []string{domain.UserRoleName})
}

func (s *UserService) rolesByName(ctx context.Context, names []string) ([]domain.Role, error) {
	seen := make(map[string]struct{}, len(names))
	roles := make([]domain.Role, 0, len(names))
	for _, name := range names {
		normalized := domain.Normalize(name)
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		r, err := s.Store.Roles().GetByNormalizedName(ctx, normalized)
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.BadRequest("Role '%s' does not exist.", strings.TrimSpace(name))
		}
		if err != nil {
			return nil, fmt.Errorf("service: load role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// membershipChanges compares the current roles of a user with the
// requested role names.
func (s *UserService) membershipChanges(ctx context.Context, userID string, names []string) (toAdd, toRemove []domain.Role, err error) {
	requested, err := s.rolesByName(ctx, names)
	if err != nil {
		return nil, nil, err
	}
	current, err := s.Store.UserRoles().ListRoles(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("service: list user roles: %w", err)
	}

	has := make(map[string]bool, len(current))
	for _, r := range current {
		has[r.ID] = true
	}
	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		want[r.ID] = true
		if !has[r.ID] {
			toAdd = append(toAdd, r)
		}
	}
	for _, r := range current {
		if !want[r.ID] {
			toRemove = append(toRemove, r)
		}
	}
	return toAdd, toRemove, nil
}

func validateCreatePassword(in UserInput) error {
	switch {
	case in.Password == "":
		return domain.BadRequest("Please enter the password")
	case in.ConfirmPassword == "":
		return domain.BadRequest("Please enter the confirmation password")
	case in.Password != in.ConfirmPassword:
		return domain.BadRequest("Passwords should match")
	}
	return nil
}

func validateProfile(in UserInput) error {
	userName := strings.TrimSpace(in.UserName)
	email := strings.TrimSpace(in.Email)
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)

	switch {
	case userName == "":
		return domain.BadRequest("Please enter the username")
	case first == "":
		return domain.BadRequest("Please enter the first name")
	case last == "":
		return domain.BadRequest("Please enter the last name")
	case email == "":
		return domain.BadRequest("Please enter the email address")
	case !validEmail(email):
		return domain.BadRequest("Please enter a valid email address")
	case len([]rune(userName)) > domain.MaxUserNameLength:
		return domain.BadRequest("The username length cannot exceed %d characters.", domain.MaxUserNameLength)
	case len([]rune(email)) > domain.MaxEmailLength:
		return domain.BadRequest("The email address length cannot exceed %d characters.", domain.MaxEmailLength)
	case len([]rune(first)) > domain.MaxFirstNameLength:
		return domain.BadRequest("The first name length cannot exceed %d characters.", domain.MaxFirstNameLength)
	case len([]rune(last)) > domain.MaxLastNameLength:
		return domain.BadRequest("The last name length cannot exceed %d characters.", domain.MaxLastNameLength)
	}
	return nil
}
