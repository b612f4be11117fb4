package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes. Services may override both through configuration.
const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// TokenType distinguishes access tokens from refresh tokens. It is encoded
// as a numeric string to stay compatible with existing clients.
type TokenType string

const (
	TokenTypeAccess  TokenType = "0"
	TokenTypeRefresh TokenType = "1"
)

// Claims carried by every token this service issues.
type Claims struct {
	jwt.RegisteredClaims

	// Name is the user name of the subject.
	Name string `json:"name,omitempty"`

	Email string `json:"email,omitempty"`

	// SecurityStamp is the user's stamp at issuance. Rotating the stamp on
	// the user revokes the token.
	SecurityStamp string `json:"security_stamp,omitempty"`

	// TokenValidityKey names the UserToken row backing this token. Deleting
	// the row revokes the token.
	TokenValidityKey string `json:"token_validity_key,omitempty"`

	// RefreshTokenValidityKey links an access token to the refresh token it
	// was minted alongside, so sign-out can revoke both.
	RefreshTokenValidityKey string `json:"refresh_token_validity_key,omitempty"`

	TokenType TokenType `json:"token_type"`
}

// NewClaims builds the registered part of a token. The caller fills in the
// identity and validity fields.
func NewClaims(
	subject string,
	typ TokenType,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		TokenType: typ,
	}
}

// NewJTI returns a random identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// IsAccess reports whether the claims belong to an access token.
func (c *Claims) IsAccess() bool { return c.TokenType == TokenTypeAccess }

// IsRefresh reports whether the claims belong to a refresh token.
func (c *Claims) IsRefresh() bool { return c.TokenType == TokenTypeRefresh }

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry checks exp and nbf against now with no clock skew allowance.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
