package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// Gate verifies tokens and both revocation signals. It implements
// httpx.Authenticator for access tokens.
type Gate struct {
	verifier jwtx.Verifier
	stamps   *SecurityStampValidator
	keys     *KeyValidator
}

func NewGate(v jwtx.Verifier, stamps *SecurityStampValidator, keys *KeyValidator) *Gate {
	return &Gate{verifier: v, stamps: stamps, keys: keys}
}

// NewDefaultGate wires both validators against s and c.
func NewDefaultGate(v jwtx.Verifier, s store.Store, c cache.Store) *Gate {
	return NewGate(v, NewSecurityStampValidator(s, c), NewKeyValidator(s, c))
}

// Authenticate accepts live access tokens only.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*httpx.Principal, error) {
	claims, err := g.check(ctx, raw, (*jwtx.Claims).IsAccess)
	if err != nil {
		return nil, err
	}
	return &httpx.Principal{UserID: claims.Subject, Claims: claims}, nil
}

// ValidateRefresh accepts live refresh tokens only.
func (g *Gate) ValidateRefresh(ctx context.Context, raw string) (*jwtx.Claims, error) {
	return g.check(ctx, raw, (*jwtx.Claims).IsRefresh)
}

func (g *Gate) check(ctx context.Context, raw string, wantType func(*jwtx.Claims) bool) (*jwtx.Claims, error) {
	claims, err := g.verifier.Verify(raw)
	if errors.Is(err, jwtx.ErrExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !wantType(claims) {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}

	if ok, err := g.stamps.Validate(ctx, claims); !ok {
		return nil, rejected(ctx, "security stamp", err)
	}
	if ok, err := g.keys.Validate(ctx, claims); !ok {
		return nil, rejected(ctx, "validity key", err)
	}
	return claims, nil
}

// rejected fails closed. A store error is logged and still rejects.
func rejected(ctx context.Context, check string, err error) error {
	if err != nil {
		slogx.FromContext(ctx).Error("token validation failed", "check", check, slogx.Err(err))
		return fmt.Errorf("%w: %s: %v", ErrInvalidToken, check, err)
	}
	return fmt.Errorf("%w: %s mismatch", ErrInvalidToken, check)
}

var _ httpx.Authenticator = (*Gate)(nil)
