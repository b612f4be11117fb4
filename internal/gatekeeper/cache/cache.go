// Package cache is the key/value layer behind the permission and token
// caches. Values are JSON encoded. Entries are derived state: callers treat
// every error as a miss and recompute from the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyKey = errors.New("cache: empty key")
	ErrClosed   = errors.New("cache: closed")
)

// Store is a TTL key/value store.
type Store interface {
	// Get returns the raw value for key. A missing or expired key reports
	// ok == false with a nil error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// GetByPrefix returns every live entry whose key starts with prefix.
	GetByPrefix(ctx context.Context, prefix string) (map[string][]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// Get decodes the JSON value stored under key.
func Get[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		// A corrupt entry is as good as missing.
		_ = s.Delete(ctx, key)
		return v, false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return v, true, nil
}

// Set stores v as JSON under key for ttl.
func Set[T any](ctx context.Context, s Store, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

// GetByPrefix decodes every entry under prefix. Entries that fail to decode
// are skipped.
func GetByPrefix[T any](ctx context.Context, s Store, prefix string) (map[string]T, error) {
	raws, err := s.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raws))
	for k, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// DeleteByPrefix removes every entry under prefix.
func DeleteByPrefix(ctx context.Context, s Store, prefix string) (int, error) {
	raws, err := s.GetByPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(raws) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(raws))
	for k := range raws {
		keys = append(keys, k)
	}
	return len(keys), s.Delete(ctx, keys...)
}
