package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/permission"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/token"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/gatekeepersdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	cryptox.SetPepper("http-test-pepper")
	os.Exit(m.Run())
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	c := cache.NewMemoryStore(1000)
	m := metrics.New()
	catalog := permission.DefaultCatalog()
	resolver := permission.NewResolver(s, c, catalog)
	manager := permission.NewManager(resolver, c, m)

	signer, err := jwtx.NewSignerHS256(testKey)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256(testKey, "gatekeeper", []string{"gatekeeper"})
	require.NoError(t, err)
	issuer := token.NewIssuer(signer, s, c, token.Config{Issuer: "gatekeeper", Audience: []string{"gatekeeper"}}, m)
	gate := token.NewDefaultGate(verifier, s, c)

	require.NoError(t, (&service.Seeder{Store: s}).Seed(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter("test", s, c, m, logger)
	r.Authenticator = gate
	r.Permissions = manager
	r.IdentityService = &service.IdentityService{
		Store:       s,
		Issuer:      issuer,
		Gate:        gate,
		Permissions: manager,
		Catalog:     catalog,
		Metrics:     m,
	}
	r.UserService = &service.UserService{Store: s, Permissions: resolver, Issuer: issuer}
	r.RoleService = &service.RoleService{Store: s, Permissions: resolver}
	r.ApplyRoutes()
	return r
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireProblem(t *testing.T, rec *httptest.ResponseRecorder, code int, detail string) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
	require.Equal(t, detail, decode[httpx.Problem](t, rec).Detail)
}

func signIn(t *testing.T, h http.Handler, name string) gatekeepersdk.AuthenticateResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/identities/authenticate", "", gatekeepersdk.AuthenticateRequest{
		UserNameOrEmailAddress: name,
		Password:               service.DefaultSeedPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[gatekeepersdk.AuthenticateResponse](t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	rec := do(t, r, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", decode[gatekeepersdk.HealthResponse](t, rec).Version)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, r, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[gatekeepersdk.HealthResponse](t, rec)
	require.Equal(t, map[string]string{"database": "ok", "cache": "ok"}, health.Checks)

	rec = do(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `gatekeeper_http_requests_total{method="GET",route="GET /livez",status="200"} 1`)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyzDegraded(t *testing.T) {
	t.Parallel()

	h := ReadyzHandler(time.Now(), "test", failingPinger{}, cache.NewMemoryStore(1))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decode[gatekeepersdk.HealthResponse](t, rec)
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, "error", health.Checks["database"])
	require.Equal(t, "ok", health.Checks["cache"])
	require.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAuthenticateEndpoint(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)

	res := signIn(t, r, "admin")
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Positive(t, res.ExpireInSeconds)

	rec := do(t, r, http.MethodPost, "/api/v1/identities/authenticate", "", "{")
	requireProblem(t, rec, http.StatusBadRequest, msgBadJSON)

	rec = do(t, r, http.MethodPost, "/api/v1/identities/authenticate", "", gatekeepersdk.AuthenticateRequest{
		UserNameOrEmailAddress: "admin",
		Password:               "wrong",
	})
	requireProblem(t, rec, http.StatusBadRequest, "Invalid username or password!")

	rec = do(t, r, http.MethodPost, "/api/v1/identities/refresh-token", "", gatekeepersdk.RefreshTokenRequest{Token: res.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, decode[gatekeepersdk.RefreshTokenResponse](t, rec).AccessToken)

	rec = do(t, r, http.MethodPost, "/api/v1/identities/refresh-token", "", gatekeepersdk.RefreshTokenRequest{Token: "junk"})
	requireProblem(t, rec, http.StatusBadRequest, "Your session is expired!")
}

func TestRefreshTokenExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newTestRouter(t)

	u, err := r.store.Users().GetByNormalizedUserName(ctx, "USER")
	require.NoError(t, err)
	signer, err := jwtx.NewSignerHS256(testKey)
	require.NoError(t, err)
	cfg := token.Config{Issuer: "gatekeeper", Audience: []string{"gatekeeper"}}

	t.Run("exp has passed", func(t *testing.T) {
		issuer := token.NewIssuer(signer, r.store, r.cache, cfg, nil)
		issuer.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		raw, _, err := issuer.CreateRefreshToken(ctx, u, time.Hour)
		require.NoError(t, err)

		rec := do(t, r, http.MethodPost, "/api/v1/identities/refresh-token", "", gatekeepersdk.RefreshTokenRequest{Token: raw})
		requireProblem(t, rec, http.StatusBadRequest, "Your session is expired!")
	})

	t.Run("backing row has expired", func(t *testing.T) {
		issuer := token.NewIssuer(signer, r.store, r.cache, cfg, nil)
		raw, key, err := issuer.CreateRefreshToken(ctx, u, time.Hour)
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, r.store.UserTokens().Delete(ctx, u.ID, domain.TokenValidityKeyProvider, key))
		require.NoError(t, r.store.UserTokens().Create(ctx, domain.UserToken{
			UserID:        u.ID,
			LoginProvider: domain.TokenValidityKeyProvider,
			Name:          key,
			ExpireDate:    now.Add(-time.Minute),
			CreatedAt:     now.Add(-time.Hour),
		}))
		require.NoError(t, r.cache.Delete(ctx, token.TokenKeyCacheKey(u.ID, key)))

		rec := do(t, r, http.MethodPost, "/api/v1/identities/refresh-token", "", gatekeepersdk.RefreshTokenRequest{Token: raw})
		requireProblem(t, rec, http.StatusBadRequest, "Your session is expired!")
	})
}

func TestAuthorization(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	admin := signIn(t, r, "admin").AccessToken
	user := signIn(t, r, "user").AccessToken

	rec := do(t, r, http.MethodGet, "/api/v1/user", "", nil)
	requireProblem(t, rec, http.StatusUnauthorized, httpx.MsgNotLoggedIn)

	rec = do(t, r, http.MethodGet, "/api/v1/user", "not-a-token", nil)
	requireProblem(t, rec, http.StatusUnauthorized, "The Token is invalid.")

	rec = do(t, r, http.MethodGet, "/api/v1/user", user, nil)
	requireProblem(t, rec, http.StatusForbidden, httpx.MsgNotAuthorized)

	rec = do(t, r, http.MethodGet, "/api/v1/user", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[gatekeepersdk.PagedResult[gatekeepersdk.User]](t, rec)
	require.Equal(t, 2, page.TotalCount)

	// Optional authentication: a bad token on an open route is ignored.
	rec = do(t, r, http.MethodGet, "/api/v1/identities/current-session", "not-a-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	anon := decode[gatekeepersdk.CurrentSessionResponse](t, rec)
	require.Nil(t, anon.User)
	require.True(t, anon.AllPermissions[permission.Users])
	require.Empty(t, anon.GrantedPermissions)

	rec = do(t, r, http.MethodGet, "/api/v1/identities/current-session", admin, nil)
	me := decode[gatekeepersdk.CurrentSessionResponse](t, rec)
	require.Equal(t, "admin", me.User.UserName)
	require.True(t, me.GrantedPermissions[permission.UsersDelete])
}

func TestSignOutRevokesTokens(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	res := signIn(t, r, "admin")

	rec := do(t, r, http.MethodPost, "/api/v1/identities/sign-out", res.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/v1/role", res.AccessToken, nil)
	requireProblem(t, rec, http.StatusUnauthorized, "The Token is invalid.")

	rec = do(t, r, http.MethodPost, "/api/v1/identities/refresh-token", "", gatekeepersdk.RefreshTokenRequest{Token: res.RefreshToken})
	requireProblem(t, rec, http.StatusBadRequest, "Your session is expired!")

	// Anonymous sign out is a no-op.
	rec = do(t, r, http.MethodPost, "/api/v1/identities/sign-out", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUserEndpoints(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	admin := signIn(t, r, "admin").AccessToken

	rec := do(t, r, http.MethodPost, "/api/v1/user", admin, gatekeepersdk.CreateOrEditUser{
		UserName:        "jane",
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "jane@example.com",
		Password:        "s3cret-pass",
		ConfirmPassword: "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	jane := decode[gatekeepersdk.UserResult](t, rec).User
	require.Equal(t, []string{"User"}, jane.Roles)

	rec = do(t, r, http.MethodGet, "/api/v1/user/"+jane.ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jane@example.com", decode[gatekeepersdk.UserResult](t, rec).User.Email)

	rec = do(t, r, http.MethodGet, "/api/v1/user?filters=jan&maxResultCount=1", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[gatekeepersdk.PagedResult[gatekeepersdk.User]](t, rec)
	require.Equal(t, 1, page.TotalCount)
	require.Equal(t, "jane", page.Items[0].UserName)

	rec = do(t, r, http.MethodGet, "/api/v1/user?skipCount=abc", admin, nil)
	requireProblem(t, rec, http.StatusBadRequest, "The value 'abc' is not valid for skipCount.")

	rec = do(t, r, http.MethodPut, "/api/v1/user", admin, gatekeepersdk.CreateOrEditUser{
		ID:        jane.ID,
		UserName:  "jane",
		FirstName: "Janet",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Roles:     []string{"Admin"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[gatekeepersdk.UserResult](t, rec).User
	require.Equal(t, "Janet", updated.FirstName)
	require.Equal(t, []string{"Admin"}, updated.Roles)

	path := "/api/v1/user/" + jane.ID
	rec = do(t, r, http.MethodPut, path+"/permissions", admin, []string{permission.Users})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodGet, path+"/permissions", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{permission.Users}, decode[gatekeepersdk.PermissionsResponse](t, rec).Items)

	rec = do(t, r, http.MethodPut, path+"/permissions", admin, "null")
	requireProblem(t, rec, http.StatusBadRequest, "Invalid permissions")

	rec = do(t, r, http.MethodPut, path+"/reset-permissions", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodGet, path+"/permissions", admin, nil)
	require.ElementsMatch(t, permission.DefaultCatalog().Names(), decode[gatekeepersdk.PermissionsResponse](t, rec).Items)

	rec = do(t, r, http.MethodDelete, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodGet, path, admin, nil)
	requireProblem(t, rec, http.StatusNotFound, "User not found")
}

func TestRoleEndpoints(t *testing.T) {
	t.Parallel()
	r := newTestRouter(t)
	admin := signIn(t, r, "admin").AccessToken

	rec := do(t, r, http.MethodPost, "/api/v1/role", admin, gatekeepersdk.CreateOrEditRole{
		Name:               "Auditor",
		GrantedPermissions: []string{permission.Users, permission.Roles},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	auditor := decode[gatekeepersdk.RoleResult](t, rec).Role
	require.False(t, auditor.IsStatic)

	rec = do(t, r, http.MethodGet, "/api/v1/role/"+auditor.ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{permission.Roles, permission.Users}, decode[gatekeepersdk.RoleResult](t, rec).Role.GrantedPermissions)

	rec = do(t, r, http.MethodGet, "/api/v1/role", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, decode[gatekeepersdk.PagedResult[gatekeepersdk.Role]](t, rec).TotalCount)

	rec = do(t, r, http.MethodPut, "/api/v1/role/"+auditor.ID+"/permissions", admin, []string{permission.Roles})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, r, http.MethodGet, "/api/v1/role/"+auditor.ID+"/permissions", admin, nil)
	require.Equal(t, []string{permission.Roles}, decode[gatekeepersdk.PermissionsResponse](t, rec).Items)

	page := decode[gatekeepersdk.PagedResult[gatekeepersdk.Role]](t,
		do(t, r, http.MethodGet, "/api/v1/role?filters=user", admin, nil))
	require.Len(t, page.Items, 1)

	rec = do(t, r, http.MethodDelete, "/api/v1/role/"+page.Items[0].ID, admin, nil)
	requireProblem(t, rec, http.StatusBadRequest, "You cannot delete static role!")

	rec = do(t, r, http.MethodDelete, "/api/v1/role/"+auditor.ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/v1/role/"+auditor.ID, admin, nil)
	requireProblem(t, rec, http.StatusNotFound, "Role not found")
}

func TestWriteErrorHidesInternals(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: relation does not exist"))
	requireProblem(t, rec, http.StatusInternalServerError, msgUnexpected)
}
