package cache_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/cache"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
	"github.com/stretchr/testify/require"
)

type item struct {
	UserID  string   `json:"userId"`
	RoleIDs []string `json:"roleIds"`
}

func newRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := cache.NewRedisStore(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, s cache.Store) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		_, ok, err := cache.Get[item](ctx, s, "UserRoles:umissing")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("set then get", func(t *testing.T) {
		want := item{UserID: "u1", RoleIDs: []string{"r1", "r2"}}
		require.NoError(t, cache.Set(ctx, s, "UserRoles:uu1", want, time.Hour))

		got, ok, err := cache.Get[item](ctx, s, "UserRoles:uu1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, s, "k1", "v", time.Hour))
		require.NoError(t, s.Delete(ctx, "k1", "never-set"))
		_, ok, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("get by prefix", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, s, "token_validity_key.u9.a", "a", time.Hour))
		require.NoError(t, cache.Set(ctx, s, "token_validity_key.u9.b", "b", time.Hour))
		require.NoError(t, cache.Set(ctx, s, "token_validity_key.u90.c", "c", time.Hour))
		require.NoError(t, cache.Set(ctx, s, "security-stamp.u9", "s", time.Hour))

		got, err := cache.GetByPrefix[string](ctx, s, "token_validity_key.u9.")
		require.NoError(t, err)
		require.Equal(t, map[string]string{
			"token_validity_key.u9.a": "a",
			"token_validity_key.u9.b": "b",
		}, got)

		n, err := cache.DeleteByPrefix(ctx, s, "token_validity_key.u9.")
		require.NoError(t, err)
		require.Equal(t, 2, n)

		got, err = cache.GetByPrefix[string](ctx, s, "token_validity_key.u9")
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("glob characters are literal", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, s, "weird*key", 1, time.Hour))
		require.NoError(t, cache.Set(ctx, s, "weirdXkey", 2, time.Hour))

		got, err := cache.GetByPrefix[int](ctx, s, "weird*")
		require.NoError(t, err)
		require.Equal(t, map[string]int{"weird*key": 1}, got)
	})

	t.Run("empty key", func(t *testing.T) {
		require.ErrorIs(t, s.Set(ctx, "", []byte("x"), time.Hour), cache.ErrEmptyKey)
		_, _, err := s.Get(ctx, "")
		require.ErrorIs(t, err, cache.ErrEmptyKey)
	})

	t.Run("corrupt entry reads as miss", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "corrupt", []byte("{not json"), time.Hour))
		_, ok, err := cache.Get[item](ctx, s, "corrupt")
		require.Error(t, err)
		require.False(t, ok)

		_, ok, err = s.Get(ctx, "corrupt")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := cache.NewMemoryStore(0)
	t.Cleanup(func() { _ = s.Close() })
	storeContract(t, s)
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	s, _ := newRedisStore(t)
	storeContract(t, s)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := cache.NewMemoryStore(10)
	s.Now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, s, "RolePermissions:r1", "x", 2*time.Hour))

	now = now.Add(2*time.Hour - time.Second)
	_, ok, err := s.Get(ctx, "RolePermissions:r1")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(time.Second)
	_, ok, err = s.Get(ctx, "RolePermissions:r1")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.GetByPrefix(ctx, "RolePermissions:")
	require.NoError(t, err)
	require.Empty(t, got)
}

// Not parallel: it counts goroutines.
func TestMemoryStoreStartsNoGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()

	stores := make([]*cache.MemoryStore, 0, 100)
	for range 100 {
		stores = append(stores, cache.NewMemoryStore(10))
	}
	require.Less(t, runtime.NumGoroutine()-before, 10)

	for _, s := range stores {
		require.NoError(t, s.Close())
	}
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := cache.NewMemoryStore(2)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Hour))
	_, _, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", []byte("3"), time.Hour))

	_, ok, _ := s.Get(ctx, "b")
	require.False(t, ok)
	_, ok, _ = s.Get(ctx, "a")
	require.True(t, ok)
	require.Equal(t, 2, s.Len())
}

func TestMemoryStoreClosed(t *testing.T) {
	t.Parallel()

	s := cache.NewMemoryStore(1)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Ping(context.Background()), cache.ErrClosed)
	_, _, err := s.Get(context.Background(), "a")
	require.ErrorIs(t, err, cache.ErrClosed)
}

func TestRedisStoreTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, cache.Set(ctx, s, "security-stamp.u1", "stamp", time.Hour))
	require.Equal(t, time.Hour, mr.TTL("security-stamp.u1"))

	mr.FastForward(time.Hour)
	_, ok, err := s.Get(ctx, "security-stamp.u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreOutage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newRedisStore(t)
	mr.Close()

	_, ok, err := s.Get(ctx, "anything")
	require.Error(t, err)
	require.False(t, ok)
	require.Error(t, s.Ping(ctx))
}

func TestNewRedisStoreInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := cache.NewRedisStore(context.Background(), "invalid://url")
	require.Error(t, err)
}

func TestInstrument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := metrics.New()
	s := cache.Instrument(cache.NewMemoryStore(10), m)

	_, _, _ = s.Get(ctx, "k")
	require.NoError(t, s.Set(ctx, "k", []byte("1"), time.Minute))
	_, _, _ = s.Get(ctx, "k")

	require.Same(t, s, cache.Instrument(s, nil))

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "gatekeeper_cache_operations_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			var op, res string
			for _, l := range metric.GetLabel() {
				switch l.GetName() {
				case "operation":
					op = l.GetValue()
				case "result":
					res = l.GetValue()
				}
			}
			counts[op+"/"+res] = metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, map[string]float64{"get/miss": 1, "get/hit": 1, "set/ok": 1}, counts)
}
