package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", domain.NotFound("User not found"))

	require.Equal(t, domain.KindNotFound, domain.KindOf(err))
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NotErrorIs(t, err, domain.ErrBadRequest)
	require.Equal(t, "wrapped: User not found", err.Error())

	require.Equal(t, domain.KindInternal, domain.KindOf(errors.New("boom")))
	require.Equal(t, "There are 2 invalid permissions", domain.BadRequest("There are %d invalid permissions", 2).Error())
}

func TestUserHelpers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	until := now.Add(time.Minute)

	u := domain.User{NormalizedUserName: domain.Normalize(" Admin ")}
	require.True(t, u.IsAdmin())
	require.False(t, u.IsLockedOut(now))

	u.LockoutEnd = &until
	require.True(t, u.IsLockedOut(now))
	require.False(t, u.IsLockedOut(until))

	require.True(t, domain.Role{NormalizedName: "ADMIN"}.IsAdmin())
	require.False(t, domain.Role{NormalizedName: "USER"}.IsAdmin())
}
