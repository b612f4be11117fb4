package sqldb

import (
	"context"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

type userRolesRepo struct {
	c conn
}

func (r *userRolesRepo) ListRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	rows, err := r.c.query(ctx, `
		SELECT r.id, r.name, r.normalized_name, r.is_static, r.is_default, r.version, r.created_at, r.updated_at, r.deleted_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ? AND r.deleted_at IS NULL
		ORDER BY r.name`,
		userID,
	)
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

func (r *userRolesRepo) ListRoleIDs(ctx context.Context, userID string) ([]string, error) {
	return r.ids(ctx, `
		SELECT ur.role_id
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ? AND r.deleted_at IS NULL
		ORDER BY ur.role_id`,
		userID,
	)
}

func (r *userRolesRepo) ListUserIDs(ctx context.Context, roleID string) ([]string, error) {
	return r.ids(ctx, `SELECT user_id FROM user_roles WHERE role_id = ? ORDER BY user_id`, roleID)
}

func (r *userRolesRepo) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *userRolesRepo) Add(ctx context.Context, userID, roleID string) error {
	_, err := r.c.exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, roleID)
	return err
}

func (r *userRolesRepo) Remove(ctx context.Context, userID, roleID string) error {
	return r.c.execAffected(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID)
}

func (r *userRolesRepo) RemoveAllForRole(ctx context.Context, roleID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM user_roles WHERE role_id = ?`, roleID)
	return err
}
