package sqldb

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

type userTokensRepo struct {
	c conn
}

func (r *userTokensRepo) Create(ctx context.Context, t domain.UserToken) error {
	_, err := r.c.exec(ctx, `
		INSERT INTO user_tokens (user_id, login_provider, name, expire_date, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.UserID, t.LoginProvider, t.Name, utc(t.ExpireDate), utc(t.CreatedAt),
	)
	return err
}

func (r *userTokensRepo) Get(ctx context.Context, userID, loginProvider, name string) (domain.UserToken, error) {
	var t domain.UserToken
	err := r.c.queryRow(ctx, `
		SELECT user_id, login_provider, name, expire_date, created_at
		FROM user_tokens
		WHERE user_id = ? AND login_provider = ? AND name = ?`,
		userID, loginProvider, name,
	).Scan(&t.UserID, &t.LoginProvider, &t.Name, &t.ExpireDate, &t.CreatedAt)
	if err != nil {
		return domain.UserToken{}, r.c.mapErr(err)
	}
	t.ExpireDate = t.ExpireDate.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *userTokensRepo) ExistsValid(ctx context.Context, userID, name string, now time.Time) (bool, error) {
	return r.c.exists(ctx, `
		SELECT 1 FROM user_tokens
		WHERE user_id = ? AND name = ? AND expire_date > ?`,
		userID, name, utc(now),
	)
}

func (r *userTokensRepo) Delete(ctx context.Context, userID, loginProvider, name string) error {
	return r.c.execAffected(ctx, `
		DELETE FROM user_tokens WHERE user_id = ? AND login_provider = ? AND name = ?`,
		userID, loginProvider, name,
	)
}

func (r *userTokensRepo) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID)
	return err
}

func (r *userTokensRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.c.exec(ctx, `DELETE FROM user_tokens WHERE expire_date <= ?`, utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
