package sqldb

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

type overridesRepo struct {
	c conn
}

func (r *overridesRepo) list(ctx context.Context, where, id string) ([]domain.PermissionOverride, error) {
	rows, err := r.c.query(ctx, `
		SELECT id, name, user_id, role_id, is_granted, created_at
		FROM user_role_permissions
		WHERE `+where+`
		ORDER BY name`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PermissionOverride
	for rows.Next() {
		var (
			o              domain.PermissionOverride
			userID, roleID sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.Name, &userID, &roleID, &o.IsGranted, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.UserID = userID.String
		o.RoleID = roleID.String
		o.CreatedAt = o.CreatedAt.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *overridesRepo) ListForRole(ctx context.Context, roleID string) ([]domain.PermissionOverride, error) {
	return r.list(ctx, `role_id = ?`, roleID)
}

func (r *overridesRepo) ListForUser(ctx context.Context, userID string) ([]domain.PermissionOverride, error) {
	return r.list(ctx, `user_id = ?`, userID)
}

func (r *overridesRepo) Insert(ctx context.Context, o domain.PermissionOverride) error {
	_, err := r.c.exec(ctx, `
		INSERT INTO user_role_permissions (id, name, user_id, role_id, is_granted, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.Name, nullString(o.UserID), nullString(o.RoleID), o.IsGranted, utc(o.CreatedAt),
	)
	return err
}

func (r *overridesRepo) DeleteRoleOverride(ctx context.Context, roleID, name string) error {
	_, err := r.c.exec(ctx, `DELETE FROM user_role_permissions WHERE role_id = ? AND name = ?`, roleID, name)
	return err
}

func (r *overridesRepo) DeleteUserOverride(ctx context.Context, userID, name string) error {
	_, err := r.c.exec(ctx, `DELETE FROM user_role_permissions WHERE user_id = ? AND name = ?`, userID, name)
	return err
}

func (r *overridesRepo) DeleteAllForRole(ctx context.Context, roleID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM user_role_permissions WHERE role_id = ?`, roleID)
	return err
}

func (r *overridesRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM user_role_permissions WHERE user_id = ?`, userID)
	return err
}
