package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

const userColumns = `id, user_name, normalized_user_name, email, normalized_email, first_name, last_name,
	password_hash, security_stamp, access_failed_count, lockout_end, version, created_at, updated_at, deleted_at`

type usersRepo struct {
	c conn
}

func scanUser(s scanner) (domain.User, error) {
	var (
		u                   domain.User
		lockoutEnd, deleted sql.NullTime
	)
	err := s.Scan(
		&u.ID, &u.UserName, &u.NormalizedUserName, &u.Email, &u.NormalizedEmail, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.SecurityStamp, &u.AccessFailedCount, &lockoutEnd,
		&u.Version, &u.CreatedAt, &u.UpdatedAt, &deleted,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	u.LockoutEnd = timePtr(lockoutEnd)
	u.DeletedAt = timePtr(deleted)
	return u, nil
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	version := u.Version
	if version == 0 {
		version = 1
	}
	_, err := r.c.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		u.ID, u.UserName, u.NormalizedUserName, u.Email, u.NormalizedEmail, u.FirstName, u.LastName,
		u.PasswordHash, u.SecurityStamp, u.AccessFailedCount, nullTime(u.LockoutEnd),
		version, utc(u.CreatedAt), utc(u.UpdatedAt),
	)
	return err
}

func (r *usersRepo) one(ctx context.Context, where string, args ...any) (domain.User, error) {
	row := r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` AND deleted_at IS NULL`, args...)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, r.c.mapErr(err)
	}
	return u, nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.one(ctx, `id = ?`, id)
}

func (r *usersRepo) GetByNormalizedUserName(ctx context.Context, normalized string) (domain.User, error) {
	return r.one(ctx, `normalized_user_name = ?`, normalized)
}

func (r *usersRepo) GetByNormalizedEmail(ctx context.Context, normalized string) (domain.User, error) {
	return r.one(ctx, `normalized_email = ?`, normalized)
}

func (r *usersRepo) List(ctx context.Context, q store.ListQuery) ([]domain.User, int, error) {
	where := `deleted_at IS NULL`
	var args []any
	if q.Filter != "" {
		like := likePattern(q.Filter)
		where += ` AND (LOWER(user_name) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?)`
		args = append(args, like, like, like, like)
	}

	var total int
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, r.c.mapErr(err)
	}

	limit, offset := page(q)
	rows, err := r.c.query(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *usersRepo) Update(ctx context.Context, u domain.User) error {
	res, err := r.c.exec(ctx, `
		UPDATE users
		SET user_name = ?, normalized_user_name = ?, email = ?, normalized_email = ?,
			first_name = ?, last_name = ?, password_hash = ?, security_stamp = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		u.UserName, u.NormalizedUserName, u.Email, u.NormalizedEmail,
		u.FirstName, u.LastName, u.PasswordHash, u.SecurityStamp,
		utc(u.UpdatedAt),
		u.ID, u.Version,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	found, err := r.c.exists(ctx, `SELECT 1 FROM users WHERE id = ? AND deleted_at IS NULL`, u.ID)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (r *usersRepo) UpdateLockout(ctx context.Context, id string, accessFailedCount int, lockoutEnd *time.Time) error {
	return r.c.execAffected(ctx, `
		UPDATE users SET access_failed_count = ?, lockout_end = ?
		WHERE id = ? AND deleted_at IS NULL`,
		accessFailedCount, nullTime(lockoutEnd), id,
	)
}

func (r *usersRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.c.execAffected(ctx, `
		UPDATE users SET deleted_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND deleted_at IS NULL`,
		utc(at), utc(at), id,
	)
}
