package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "gatekeeper",
		},
	}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("gatekeeper"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer("someone-else"), jwtx.ErrIssuer)
	})
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: []string{"web", "admin"},
		},
	}

	t.Run("contains match", func(t *testing.T) {
		require.NoError(t, c.ValidateAudience([]string{"web"}))
	})

	t.Run("no match", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateAudience([]string{"mobile"}), jwtx.ErrAudience)
	})

	t.Run("empty expected list", func(t *testing.T) {
		require.NoError(t, c.ValidateAudience(nil))
	})
}

func TestValidateExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid token", func(t *testing.T) {
		c := jwtx.NewClaims("u1", jwtx.TokenTypeAccess, time.Minute, "iss", nil, now)
		require.NoError(t, c.ValidateExpiry(now.Add(30*time.Second)))
	})

	t.Run("expired exactly at exp", func(t *testing.T) {
		c := jwtx.NewClaims("u1", jwtx.TokenTypeAccess, time.Minute, "iss", nil, now)
		require.ErrorIs(t, c.ValidateExpiry(now.Add(time.Minute)), jwtx.ErrExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := jwtx.NewClaims("u1", jwtx.TokenTypeAccess, time.Minute, "iss", nil, now)
		require.ErrorIs(t, c.ValidateExpiry(now.Add(-time.Second)), jwtx.ErrNotYetValid)
	})

	t.Run("no exp or nbf", func(t *testing.T) {
		c := &jwtx.Claims{}
		require.NoError(t, c.ValidateExpiry(now))
	})
}

func TestNewClaims(t *testing.T) {
	now := time.Now().UTC()
	c := jwtx.NewClaims("u1", jwtx.TokenTypeRefresh, time.Hour, "iss", []string{"aud"}, now)

	require.Equal(t, "u1", c.Subject)
	require.True(t, c.IsRefresh())
	require.False(t, c.IsAccess())
	require.NotEmpty(t, c.ID)
	require.NotEqual(t, c.ID, jwtx.NewClaims("u1", jwtx.TokenTypeRefresh, time.Hour, "iss", nil, now).ID)
}
