package cache

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/metrics"
)

type instrumented struct {
	Store
	m *metrics.Metrics
}

// Instrument counts hits, misses and errors of s.
func Instrument(s Store, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, m: m}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := i.Store.Get(ctx, key)
	switch {
	case err != nil:
		i.m.CacheOperation("get", "error")
	case ok:
		i.m.CacheOperation("get", "hit")
	default:
		i.m.CacheOperation("get", "miss")
	}
	return v, ok, err
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := i.Store.Set(ctx, key, value, ttl)
	i.m.CacheOperation("set", result(err))
	return err
}

func (i *instrumented) Delete(ctx context.Context, keys ...string) error {
	err := i.Store.Delete(ctx, keys...)
	i.m.CacheOperation("delete", result(err))
	return err
}

func (i *instrumented) GetByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	out, err := i.Store.GetByPrefix(ctx, prefix)
	i.m.CacheOperation("get_by_prefix", result(err))
	return out, err
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
