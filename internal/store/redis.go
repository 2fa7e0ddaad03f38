package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and invalidate the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := s.primary.Put(ctx, key, blob); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, cacheKey(key))
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	s.rdb.Del(ctx, cacheKey(key))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, cacheKey(key)).Bytes()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("redis read failed, using primary", "key", key, "err", err)
	}

	blob, err := s.primary.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, cacheKey(key), blob, s.ttl).Err(); err != nil {
		slog.Warn("redis populate failed", "key", key, "err", err)
	}
	return blob, nil
}

func (s *CachedStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.primary.Keys(ctx, prefix)
}

func cacheKey(key string) string { return fmt.Sprintf("cache:%s", key) }
