package gatekeeper_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/app"
	"github.com/aussiebroadwan/gatekeeper/pkg/gatekeepersdk"
	"github.com/stretchr/testify/require"
)

const (
	permUsers       = "Pages.Administration.Users"
	permUsersCreate = "Pages.Administration.Users.Create"
	permRoles       = "Pages.Administration.Roles"
)

func TestAdministrationSQLite(t *testing.T) {
	runAdministration(t, baseConfig(t))
}

func TestAdministrationPostgres(t *testing.T) {
	runAdministration(t, postgresConfig(t))
}

// runAdministration walks a role and user through their life cycle and
// checks every permission change is visible on the very next request.
func runAdministration(t *testing.T, cfg app.Config) {
	ctx := t.Context()
	c := startGatekeeper(t, cfg)
	admin := signIn(t, c, "admin", seedPassword)

	support, err := admin.CreateRole(ctx, gatekeepersdk.CreateOrEditRole{
		Name:               "Support",
		GrantedPermissions: []string{permUsers, permRoles},
	})
	require.NoError(t, err)

	jane, err := admin.CreateUser(ctx, gatekeepersdk.CreateOrEditUser{
		UserName:        "jane",
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "jane@example.com",
		Password:        "Jane-Passw0rd",
		ConfirmPassword: "Jane-Passw0rd",
		Roles:           []string{"Support"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Support"}, jane.Roles)

	js := signIn(t, c, "jane", "Jane-Passw0rd")

	page, err := js.ListUsers(ctx, gatekeepersdk.ListOptions{Filter: "ja"})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)

	_, err = js.CreateUser(ctx, gatekeepersdk.CreateOrEditUser{UserName: "x"})
	requireStatus(t, err, http.StatusForbidden)

	// A user override takes effect immediately.
	require.NoError(t, admin.UpdateUserPermissions(ctx, jane.ID, []string{permRoles, permUsersCreate}))
	_, err = js.ListUsers(ctx, gatekeepersdk.ListOptions{})
	requireStatus(t, err, http.StatusForbidden)

	names, err := admin.GetUserPermissions(ctx, jane.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{permRoles, permUsersCreate}, names)

	require.NoError(t, admin.ResetUserPermissions(ctx, jane.ID))
	_, err = js.ListUsers(ctx, gatekeepersdk.ListOptions{})
	require.NoError(t, err)

	// So does a role change.
	require.NoError(t, admin.UpdateRolePermissions(ctx, support.ID, []string{permRoles}))
	_, err = js.ListUsers(ctx, gatekeepersdk.ListOptions{})
	requireStatus(t, err, http.StatusForbidden)

	role, err := admin.GetRole(ctx, support.ID)
	require.NoError(t, err)
	require.Equal(t, []string{permRoles}, role.GrantedPermissions)

	// Deleting the role strips the membership.
	require.NoError(t, admin.DeleteRole(ctx, support.ID))
	_, err = js.ListRoles(ctx, gatekeepersdk.ListOptions{})
	requireStatus(t, err, http.StatusForbidden)

	got, err := admin.GetUser(ctx, jane.ID)
	require.NoError(t, err)
	require.Empty(t, got.Roles)

	// A password change revokes existing sessions.
	_, err = admin.UpdateUser(ctx, gatekeepersdk.CreateOrEditUser{
		ID:              jane.ID,
		UserName:        "jane",
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "jane@example.com",
		Password:        "New-Passw0rd",
		ConfirmPassword: "New-Passw0rd",
	})
	require.NoError(t, err)
	me, err := js.CurrentSession(ctx)
	require.NoError(t, err)
	require.Nil(t, me.User)

	js = signIn(t, c, "jane", "New-Passw0rd")

	require.NoError(t, admin.DeleteUser(ctx, jane.ID))
	_, err = admin.GetUser(ctx, jane.ID)
	requireStatus(t, err, http.StatusNotFound)

	me, err = js.CurrentSession(ctx)
	require.NoError(t, err)
	require.Nil(t, me.User)

	err = admin.DeleteRole(ctx, "missing")
	requireStatus(t, err, http.StatusNotFound)
}
