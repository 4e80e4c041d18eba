package marketdata

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTTL is how long fetched data stays fresh.
const DefaultTTL = 30 * time.Minute

// Store is the byte-level backend behind Cache.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Reset(ctx context.Context) error
}

// Cache memoizes fetch results for a fixed TTL. It is created once per
// process and passed to whatever needs it; Reset exists for tests.
type Cache struct {
	store  Store
	logger logrus.FieldLogger
	ttl    time.Duration
}

// NewCache wraps store. A non-positive ttl uses DefaultTTL.
func NewCache(store Store, ttl time.Duration, logger logrus.FieldLogger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Reset drops every cached entry.
func (c *Cache) Reset(ctx context.Context) error {
	return c.store.Reset(ctx)
}

// GetCachedOrFetch returns the cached value for key when fresh, otherwise
// calls fetch and caches a non-nil result. Concurrent misses on the same
// key may each call fetch. Store failures degrade to a plain fetch.
func GetCachedOrFetch[T any](ctx context.Context, c *Cache, key string,
	fetch func(context.Context) (*T, error)) (*T, error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	}
	if found {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return &v, nil
		}
		c.logger.WithField("key", key).Warn("Discarding undecodable cache entry")
	}

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache encode failed")
		return v, nil
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
	return v, nil
}

type memItem struct {
	expires time.Time
	v       []byte
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	items map[string]memItem
	now   func() time.Time
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Get returns a copy of the value when present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now := s.now(); !now.Before(it.expires) {
		s.mu.Lock()
		if cur, ok := s.items[key]; ok && !now.Before(cur.expires) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return clone(it.v), true, nil
}

// Set stores a copy of value until now+ttl.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.items[key] = memItem{v: clone(value), expires: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Reset clears the store.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.items = map[string]memItem{}
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
