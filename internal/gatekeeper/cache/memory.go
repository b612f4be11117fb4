package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemorySize bounds the in-process cache when no size is configured.
const DefaultMemorySize = 10_000

// maxMemoryTTL caps the deadline of a single entry.
const maxMemoryTTL = 24 * time.Hour

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a bounded in-process Store for single instance deployments
// and tests.
type MemoryStore struct {
	lru    *lru.LRU[string, memoryEntry]
	closed atomic.Bool

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

// NewMemoryStore creates a store holding at most size entries, evicting the
// least recently used first.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = DefaultMemorySize
	}
	// A zero LRU ttl keeps the library from starting its expiry goroutine,
	// which has no way to stop. Entries carry their own deadline instead,
	// checked on read, and the size bound evicts the stale ones.
	return &MemoryStore{
		lru: lru.NewLRU[string, memoryEntry](size, nil, 0),
		Now: time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if m.closed.Load() {
		return nil, false, ErrClosed
	}

	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !m.Now().Before(e.expiresAt) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if m.closed.Load() {
		return ErrClosed
	}
	if ttl <= 0 || ttl > maxMemoryTTL {
		ttl = maxMemoryTTL
	}

	m.lru.Add(key, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.Now().Add(ttl),
	})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	for _, k := range keys {
		m.lru.Remove(k)
	}
	return nil
}

func (m *MemoryStore) GetByPrefix(_ context.Context, prefix string) (map[string][]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	now := m.Now()
	out := make(map[string][]byte)
	for _, k := range m.lru.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		e, ok := m.lru.Peek(k)
		if !ok || !now.Before(e.expiresAt) {
			continue
		}
		out[k] = e.value
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Len reports the number of entries, expired ones included.
func (m *MemoryStore) Len() int { return m.lru.Len() }

func (m *MemoryStore) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.lru.Purge()
	}
	return nil
}
