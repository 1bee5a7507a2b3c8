package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier is one storage level of the cache. The manager layers a fast
// in-process tier over a Redis tier; invalidation deletes from both.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryTier is a mutex-guarded map with per-entry expiry. Reads return a
// copy so callers can't mutate cached bytes.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryTier() *MemoryTier {
	return &MemoryTier{entries: make(map[string]memoryEntry)}
}

func (t *MemoryTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	t.mu.RLock()
	entry, ok := t.entries[key]
	t.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		t.mu.Lock()
		delete(t.entries, key)
		t.mu.Unlock()
		return nil, false, nil
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (t *MemoryTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	t.mu.Lock()
	t.entries[key] = entry
	t.mu.Unlock()
	return nil
}

func (t *MemoryTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
	return nil
}

func (t *MemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// RedisTier is the persistent tier backed by go-redis.
type RedisTier struct {
	rdb *redis.Client
}

func NewRedisTier(rdb *redis.Client) *RedisTier {
	return &RedisTier{rdb: rdb}
}

func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := t.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.rdb.Set(ctx, key, value, ttl).Err()
}

func (t *RedisTier) Delete(ctx context.Context, key string) error {
	return t.rdb.Del(ctx, key).Err()
}
