// Package token issues access and refresh tokens and checks them against
// server side revocation state.
package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// Errors returned by Gate. They are the httpx errors so the authentication
// middleware can tell them apart.
var (
	ErrInvalidToken = httpx.ErrInvalidToken
	ErrTokenExpired = httpx.ErrTokenExpired
)

// MarkerCacheTTL is how long validity key and security stamp markers stay
// cached.
const MarkerCacheTTL = time.Hour

func SecurityStampCacheKey(userID string) string { return "security-stamp." + userID }

func TokenKeyCacheKey(userID, key string) string {
	return TokenKeyCachePrefix(userID) + key
}

// TokenKeyCachePrefix covers every validity key marker of a user.
func TokenKeyCachePrefix(userID string) string { return "token_validity_key." + userID + "." }

// Config carries the deployment settings of issued tokens.
type Config struct {
	Issuer   string
	Audience []string

	// Lifetimes used when a caller passes a zero expiration.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	return c
}

func cacheGet(ctx context.Context, c cache.Store, key string) (string, bool) {
	v, ok, err := cache.Get[string](ctx, c, key)
	if err != nil {
		slogx.FromContext(ctx).Warn("cache read failed, falling back to store",
			slog.String("key", key), slogx.Err(err))
		return "", false
	}
	return v, ok
}

func cacheSet(ctx context.Context, c cache.Store, key, value string) {
	if err := cache.Set(ctx, c, key, value, MarkerCacheTTL); err != nil {
		slogx.FromContext(ctx).Warn("cache write failed", slog.String("key", key), slogx.Err(err))
	}
}
