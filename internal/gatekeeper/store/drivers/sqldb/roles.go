package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

const roleColumns = `id, name, normalized_name, is_static, is_default, version, created_at, updated_at, deleted_at`

type rolesRepo struct {
	c conn
}

func scanRole(s scanner) (domain.Role, error) {
	var (
		r         domain.Role
		deletedAt sql.NullTime
	)
	err := s.Scan(
		&r.ID, &r.Name, &r.NormalizedName, &r.IsStatic, &r.IsDefault,
		&r.Version, &r.CreatedAt, &r.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return domain.Role{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.DeletedAt = timePtr(deletedAt)
	return r, nil
}

func (r *rolesRepo) Create(ctx context.Context, role domain.Role) error {
	version := role.Version
	if version == 0 {
		version = 1
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO roles (`+roleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		role.ID, role.Name, role.NormalizedName, role.IsStatic, role.IsDefault,
		version, utc(role.CreatedAt), utc(role.UpdatedAt),
	)
	return err
}

func (r *rolesRepo) one(ctx context.Context, where string, args ...any) (domain.Role, error) {
	row := r.c.queryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE `+where+` AND deleted_at IS NULL`, args...)
	role, err := scanRole(row)
	if err != nil {
		return domain.Role{}, r.c.mapErr(err)
	}
	return role, nil
}

func (r *rolesRepo) GetByID(ctx context.Context, id string) (domain.Role, error) {
	return r.one(ctx, `id = ?`, id)
}

func (r *rolesRepo) GetByNormalizedName(ctx context.Context, normalized string) (domain.Role, error) {
	return r.one(ctx, `normalized_name = ?`, normalized)
}

func (r *rolesRepo) GetDefaults(ctx context.Context) ([]domain.Role, error) {
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_default = ? AND deleted_at IS NULL ORDER BY id`, true)
}

func (r *rolesRepo) List(ctx context.Context, q store.ListQuery) ([]domain.Role, int, error) {
	where := `deleted_at IS NULL`
	var args []any
	if q.Filter != "" {
		where += ` AND LOWER(name) LIKE ?`
		args = append(args, likePattern(q.Filter))
	}

	var total int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM roles WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, r.c.mapErr(err)
	}

	limit, offset := page(q)
	roles, err := r.list(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

func (r *rolesRepo) list(ctx context.Context, query string, args ...any) ([]domain.Role, error) {
	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) Update(ctx context.Context, role domain.Role) error {
	res, err := r.c.exec(ctx, `
		UPDATE roles
		SET name = ?, normalized_name = ?, is_default = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		role.Name, role.NormalizedName, role.IsDefault, utc(role.UpdatedAt),
		role.ID, role.Version,
	)
	if err != nil {
		return err
	}
	return r.checkVersioned(ctx, res, role.ID)
}

// checkVersioned distinguishes a missing row from a stale version after an
// optimistic update touched nothing.
func (r *rolesRepo) checkVersioned(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	found, err := r.c.exists(ctx, `SELECT 1 FROM roles WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (r *rolesRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.c.execAffected(ctx, `
		UPDATE roles SET deleted_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND deleted_at IS NULL`,
		utc(at), utc(at), id,
	)
}
