package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"github.com/google/uuid"
)

// Issuer mints tokens and records a UserToken row for each, so any single
// token can be revoked by deleting its row.
type Issuer struct {
	signer  jwtx.Signer
	store   store.Store
	cache   cache.Store
	cfg     Config
	metrics *metrics.Metrics

	// Now is the issuance clock. Defaults to time.Now.
	Now func() time.Time
}

func NewIssuer(signer jwtx.Signer, s store.Store, c cache.Store, cfg Config, m *metrics.Metrics) *Issuer {
	return &Issuer{
		signer:  signer,
		store:   s,
		cache:   c,
		cfg:     cfg.withDefaults(),
		metrics: m,
		Now:     time.Now,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.cfg.AccessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

// CreateAccessToken issues an access token. refreshTokenKey links it to
// the refresh token it was minted with and may be empty. A zero expiration
// selects the configured default.
func (i *Issuer) CreateAccessToken(ctx context.Context, user domain.User, refreshTokenKey string, expiration time.Duration) (string, error) {
	if expiration <= 0 {
		expiration = i.cfg.AccessTTL
	}
	raw, _, err := i.issue(ctx, user, jwtx.TokenTypeAccess, refreshTokenKey, expiration)
	return raw, err
}

// CreateRefreshToken issues a refresh token and returns its validity key.
func (i *Issuer) CreateRefreshToken(ctx context.Context, user domain.User, expiration time.Duration) (string, string, error) {
	if expiration <= 0 {
		expiration = i.cfg.RefreshTTL
	}
	return i.issue(ctx, user, jwtx.TokenTypeRefresh, "", expiration)
}

func (i *Issuer) issue(ctx context.Context, user domain.User, typ jwtx.TokenType, refreshKey string, ttl time.Duration) (string, string, error) {
	now := i.Now().UTC()
	key := uuid.NewString()

	claims := jwtx.NewClaims(user.ID, typ, ttl, i.cfg.Issuer, i.cfg.Audience, now)
	claims.Name = user.UserName
	claims.Email = user.Email
	claims.SecurityStamp = user.SecurityStamp
	claims.TokenValidityKey = key
	if typ == jwtx.TokenTypeAccess {
		claims.RefreshTokenValidityKey = refreshKey
	}

	raw, err := i.signer.Sign(claims)
	if err != nil {
		return "", "", fmt.Errorf("token: sign: %w", err)
	}

	err = i.store.UserTokens().Create(ctx, domain.UserToken{
		UserID:        user.ID,
		LoginProvider: domain.TokenValidityKeyProvider,
		Name:          key,
		ExpireDate:    now.Add(ttl),
		CreatedAt:     now,
	})
	if err != nil {
		return "", "", fmt.Errorf("token: record validity key: %w", err)
	}

	cacheSet(ctx, i.cache, TokenKeyCacheKey(user.ID, key), key)
	cacheSet(ctx, i.cache, SecurityStampCacheKey(user.ID), user.SecurityStamp)

	i.metrics.TokenIssued(typeLabel(typ))
	return raw, key, nil
}

// Revoke deletes the row and cache marker of one validity key. It reports
// false when the key was not live.
//
// The row goes first. A validation racing with Revoke can only re-cache the
// marker from a row it still sees, so the marker is evicted after the row is
// gone.
func (i *Issuer) Revoke(ctx context.Context, userID, key string) (bool, error) {
	if userID == "" || key == "" {
		return false, nil
	}

	revoked := true
	err := i.store.UserTokens().Delete(ctx, userID, domain.TokenValidityKeyProvider, key)
	if errors.Is(err, store.ErrNotFound) {
		revoked = false
	} else if err != nil {
		return false, fmt.Errorf("token: delete validity key: %w", err)
	}

	if err := i.cache.Delete(ctx, TokenKeyCacheKey(userID, key)); err != nil {
		slogx.FromContext(ctx).Warn("cache evict failed", slog.String("user_id", userID), slogx.Err(err))
	}
	return revoked, nil
}

// EvictUser drops the security stamp and every validity key marker of a
// user from the cache. Callers remove the rows before evicting.
func (i *Issuer) EvictUser(ctx context.Context, userID string) error {
	if _, err := cache.DeleteByPrefix(ctx, i.cache, TokenKeyCachePrefix(userID)); err != nil {
		return fmt.Errorf("token: evict validity keys: %w", err)
	}
	return i.EvictSecurityStamp(ctx, userID)
}

// EvictSecurityStamp forgets the cached stamp of a user. Call it after the
// rotated stamp is committed.
func (i *Issuer) EvictSecurityStamp(ctx context.Context, userID string) error {
	if err := i.cache.Delete(ctx, SecurityStampCacheKey(userID)); err != nil {
		return fmt.Errorf("token: evict security stamp: %w", err)
	}
	return nil
}

func typeLabel(t jwtx.TokenType) string {
	if t == jwtx.TokenTypeRefresh {
		return "refresh"
	}
	return "access"
}
