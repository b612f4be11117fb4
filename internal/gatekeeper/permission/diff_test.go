package permission_test

import (
	"testing"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/permission"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	none := func(string) bool { return false }
	all := func(string) bool { return true }

	t.Run("opt-in role grants and removes explicitly", func(t *testing.T) {
		t.Parallel()

		c := permission.Diff(
			permission.NewSet("a", "b"),
			permission.NewSet("b", "c"),
			none,
		)
		require.Equal(t, []string{"a", "c"}, c.ToDeleteOverride)
		require.Empty(t, c.ToInsertProhibit)
		require.Equal(t, []string{"c"}, c.ToInsertGrant)
	})

	t.Run("admin role prohibits removals", func(t *testing.T) {
		t.Parallel()

		c := permission.Diff(
			permission.NewSet("a", "b", "c"),
			permission.NewSet("a", "b"),
			all,
		)
		require.Equal(t, []string{"c"}, c.ToDeleteOverride)
		require.Equal(t, []string{"c"}, c.ToInsertProhibit)
		require.Empty(t, c.ToInsertGrant)
	})

	t.Run("re-adding an inherited name only drops the prohibit", func(t *testing.T) {
		t.Parallel()

		c := permission.Diff(permission.NewSet(), permission.NewSet("a"), all)
		require.Equal(t, []string{"a"}, c.ToDeleteOverride)
		require.Empty(t, c.ToInsertProhibit)
		require.Empty(t, c.ToInsertGrant)
	})

	t.Run("user layer mixes both", func(t *testing.T) {
		t.Parallel()

		fromRole := permission.NewSet("role-a", "role-b")
		c := permission.Diff(
			permission.NewSet("role-a", "role-b", "user-x"),
			permission.NewSet("role-a", "user-y"),
			fromRole.Has,
		)
		require.Equal(t, []string{"role-b", "user-x", "user-y"}, c.ToDeleteOverride)
		require.Equal(t, []string{"role-b"}, c.ToInsertProhibit)
		require.Equal(t, []string{"user-y"}, c.ToInsertGrant)
	})

	t.Run("no change", func(t *testing.T) {
		t.Parallel()

		c := permission.Diff(permission.NewSet("a"), permission.NewSet("a"), all)
		require.True(t, c.Empty())
	})
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	c := permission.DefaultCatalog()
	require.Len(t, c.All(), 9)
	require.Equal(t, permission.Roles, c.Names()[0])
	require.True(t, c.Has(permission.UsersChangePermissions))
	require.False(t, c.Has("Pages.Nope"))
	require.Equal(t, []string{permission.GroupRoles, permission.GroupUsers}, c.Groups())

	p, ok := c.Get(permission.RolesDelete)
	require.True(t, ok)
	require.Equal(t, "Delete role", p.DisplayName)

	require.Panics(t, func() {
		permission.NewCatalog(c.All()[0], c.All()[0])
	})
}
