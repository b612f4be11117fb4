package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// DefaultSeedPassword is given to the seeded accounts when none is
// configured.
const DefaultSeedPassword = "123qwe"

// Seeder creates the static roles and the two well-known accounts. It is
// idempotent: anything that already exists is left untouched.
type Seeder struct {
	Store           store.Store
	DefaultPassword string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Seeder) Seed(ctx context.Context) error {
	l := slogx.FromContext(ctx)

	password := s.DefaultPassword
	if password == "" {
		password = DefaultSeedPassword
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		now := nowFunc(s.Now)

		admin, err := seedRole(ctx, tx, domain.Role{Name: domain.AdminRoleName, IsStatic: true}, now)
		if err != nil {
			return err
		}
		member, err := seedRole(ctx, tx, domain.Role{Name: domain.UserRoleName, IsStatic: true, IsDefault: true}, now)
		if err != nil {
			return err
		}

		accounts := []seedAccount{
			{name: domain.AdminUserName, firstName: "Admin", role: admin},
			{name: domain.UserUserName, firstName: "User", role: member},
		}
		for _, a := range accounts {
			created, err := seedUser(ctx, tx, a, password, now)
			if err != nil {
				return err
			}
			if created {
				l.Info("seeded user", slog.String("user_name", a.name), slog.String("role", a.role.Name))
			}
		}
		return nil
	})
}

func seedRole(ctx context.Context, tx store.Tx, r domain.Role, now time.Time) (domain.Role, error) {
	r.NormalizedName = domain.Normalize(r.Name)

	existing, err := tx.Roles().GetByNormalizedName(ctx, r.NormalizedName)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, fmt.Errorf("seed: load role %s: %w", r.Name, err)
	}

	r.ID = idx.NewAt(now).String()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := tx.Roles().Create(ctx, r); err != nil {
		return domain.Role{}, fmt.Errorf("seed: create role %s: %w", r.Name, err)
	}
	slogx.FromContext(ctx).Info("seeded role", slog.String("name", r.Name))
	return r, nil
}

type seedAccount struct {
	name      string
	firstName string
	role      domain.Role
}

func seedUser(ctx context.Context, tx store.Tx, a seedAccount, password string, now time.Time) (bool, error) {
	name, role := a.name, a.role
	normalized := domain.Normalize(name)
	_, err := tx.Users().GetByNormalizedUserName(ctx, normalized)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("seed: load user %s: %w", name, err)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("seed: hash password: %w", err)
	}

	email := name + "@gatekeeper.local"
	u := domain.User{
		ID:                 idx.NewAt(now).String(),
		UserName:           name,
		NormalizedUserName: normalized,
		Email:              email,
		NormalizedEmail:    domain.Normalize(email),
		FirstName:          a.firstName,
		LastName:           "Gatekeeper",
		PasswordHash:       hash,
		SecurityStamp:      cryptox.NewSecurityStamp(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := tx.Users().Create(ctx, u); err != nil {
		return false, fmt.Errorf("seed: create user %s: %w", name, err)
	}
	if err := tx.UserRoles().Add(ctx, u.ID, role.ID); err != nil {
		return false, fmt.Errorf("seed: assign role %s: %w", role.Name, err)
	}
	return true, nil
}
