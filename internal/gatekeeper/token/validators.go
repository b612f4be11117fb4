package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// SecurityStampValidator checks that the stamp in a token is still the
// user's current stamp.
type SecurityStampValidator struct {
	store store.Store
	cache cache.Store
}

func NewSecurityStampValidator(s store.Store, c cache.Store) *SecurityStampValidator {
	return &SecurityStampValidator{store: s, cache: c}
}

// Validate returns false for a missing claim, an unknown user or a stale
// stamp. Errors are store failures.
func (v *SecurityStampValidator) Validate(ctx context.Context, claims *jwtx.Claims) (bool, error) {
	if claims == nil || claims.Subject == "" || claims.SecurityStamp == "" {
		return false, nil
	}

	key := SecurityStampCacheKey(claims.Subject)
	if cached, ok := cacheGet(ctx, v.cache, key); ok && cached == claims.SecurityStamp {
		return true, nil
	}

	user, err := v.store.Users().GetByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("token: load user: %w", err)
	}

	cacheSet(ctx, v.cache, key, user.SecurityStamp)
	return user.SecurityStamp == claims.SecurityStamp, nil
}

// KeyValidator checks that the validity key in a token still has a live
// UserToken row.
type KeyValidator struct {
	store store.Store
	cache cache.Store

	// Now is compared against the row expiry. Defaults to time.Now.
	Now func() time.Time
}

func NewKeyValidator(s store.Store, c cache.Store) *KeyValidator {
	return &KeyValidator{store: s, cache: c, Now: time.Now}
}

func (v *KeyValidator) Validate(ctx context.Context, claims *jwtx.Claims) (bool, error) {
	if claims == nil || claims.Subject == "" || claims.TokenValidityKey == "" {
		return false, nil
	}

	key := TokenKeyCacheKey(claims.Subject, claims.TokenValidityKey)
	if cached, ok := cacheGet(ctx, v.cache, key); ok && cached == claims.TokenValidityKey {
		return true, nil
	}

	ok, err := v.store.UserTokens().ExistsValid(ctx, claims.Subject, claims.TokenValidityKey, v.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("token: check validity key: %w", err)
	}
	if ok {
		cacheSet(ctx, v.cache, key, claims.TokenValidityKey)
	}
	return ok, nil
}
