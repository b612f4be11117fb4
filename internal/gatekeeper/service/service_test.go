package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/permission"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/token"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	cryptox.SetPepper("service-test-pepper")
	os.Exit(m.Run())
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	store    store.Store
	cache    *cache.MemoryStore
	metrics  *metrics.Metrics
	resolver *permission.Resolver
	manager  *permission.Manager
	issuer   *token.Issuer
	gate     *token.Gate

	identity *IdentityService
	users    *UserService
	roles    *RoleService

	admin domain.User
	user  domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCache(t, nil)
}

// newFixtureWithCache lets a test wrap the cache every component sees.
func newFixtureWithCache(t *testing.T, wrap func(cache.Store) cache.Store) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	mem := cache.NewMemoryStore(1000)
	var c cache.Store = mem
	if wrap != nil {
		c = wrap(mem)
	}
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

	seeder := &Seeder{Store: s}
	require.NoError(t, seeder.Seed(ctx))

	admin, err := s.Users().GetByNormalizedUserName(ctx, "ADMIN")
	require.NoError(t, err)
	user, err := s.Users().GetByNormalizedUserName(ctx, "USER")
	require.NoError(t, err)

	return &fixture{
		store:    s,
		cache:    mem,
		metrics:  m,
		resolver: resolver,
		manager:  manager,
		issuer:   issuer,
		gate:     gate,
		identity: &IdentityService{
			Store:       s,
			Issuer:      issuer,
			Gate:        gate,
			Permissions: manager,
			Catalog:     catalog,
			Metrics:     m,
		},
		users: &UserService{Store: s, Permissions: resolver, Issuer: issuer},
		roles: &RoleService{Store: s, Permissions: resolver},
		admin: admin,
		user:  user,
	}
}

func (f *fixture) signIn(t *testing.T, name string) AuthenticateResult {
	t.Helper()
	res, err := f.identity.Authenticate(context.Background(), name, DefaultSeedPassword)
	require.NoError(t, err)
	return res
}

func (f *fixture) role(t *testing.T, name string) domain.Role {
	t.Helper()
	r, err := f.store.Roles().GetByNormalizedName(context.Background(), domain.Normalize(name))
	require.NoError(t, err)
	return r
}

func requireDetail(t *testing.T, err error, kind domain.Kind, detail string) {
	t.Helper()
	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de), "expected a domain error, got %v", err)
	require.Equal(t, kind, de.Kind)
	if detail != "" {
		require.Equal(t, detail, de.Detail)
	}
}

func TestSeederIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, (&Seeder{Store: f.store}).Seed(ctx))

	roles, total, err := f.store.Roles().List(ctx, store.ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	for _, r := range roles {
		require.True(t, r.IsStatic)
	}
	require.True(t, f.role(t, domain.UserRoleName).IsDefault)

	_, total, err = f.store.Users().List(ctx, store.ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	adminRoles, err := f.store.UserRoles().ListRoles(ctx, f.admin.ID)
	require.NoError(t, err)
	require.Len(t, adminRoles, 1)
	require.Equal(t, domain.AdminRoleName, adminRoles[0].Name)
}

func TestRetryOnConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("second attempt wins", func(t *testing.T) {
		calls := 0
		err := retryOnConflict(ctx, func() error {
			calls++
			if calls == 1 {
				return store.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 2, calls)
	})

	t.Run("two conflicts surface as 409", func(t *testing.T) {
		calls := 0
		err := retryOnConflict(ctx, func() error {
			calls++
			return store.ErrConflict
		})
		require.Equal(t, 2, calls)
		requireDetail(t, err, domain.KindConflict, msgConcurrentUpdate)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := retryOnConflict(ctx, func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})
}

func TestListRequestValidation(t *testing.T) {
	t.Parallel()

	requireDetail(t, ListRequest{SkipCount: -1}.validate(), domain.KindBadRequest,
		"Page should at least greater than or equal to 0.")
	requireDetail(t, ListRequest{MaxResultCount: -1}.validate(), domain.KindBadRequest,
		"Page size should at least greater than or equal to 0.")
	require.NoError(t, ListRequest{SkipCount: 10, MaxResultCount: 10}.validate())
}

func TestHousekeepingCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	now := time.Now().UTC()
	require.NoError(t, f.store.UserTokens().Create(ctx, domain.UserToken{
		UserID:        f.user.ID,
		LoginProvider: domain.TokenValidityKeyProvider,
		Name:          "expired",
		ExpireDate:    now.Add(-time.Minute),
		CreatedAt:     now.Add(-time.Hour),
	}))
	require.NoError(t, f.store.UserTokens().Create(ctx, domain.UserToken{
		UserID:        f.user.ID,
		LoginProvider: domain.TokenValidityKeyProvider,
		Name:          "live",
		ExpireDate:    now.Add(time.Hour),
		CreatedAt:     now,
	}))

	h := NewHousekeepingService(f.store, nil, f.metrics, time.Hour)
	require.Equal(t, int64(1), h.Cleanup(ctx))
	require.Equal(t, int64(0), h.Cleanup(ctx))

	_, err := f.store.UserTokens().Get(ctx, f.user.ID, domain.TokenValidityKeyProvider, "live")
	require.NoError(t, err)
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	h := NewHousekeepingService(f.store, nil, nil, 0)
	require.Equal(t, time.Hour, h.Interval)

	h.Start()
	h.Stop()
}
