package cache

import (
	"context"
	"fmt"
	"hash/maphash"
	"sync"
	"time"
)

var _ Cache[string, int] = (*TTLCache[string, int])(nil)

type ttlCacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

func (i ttlCacheItem[V]) isExpired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

type ttlCacheShard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]ttlCacheItem[V]
}

type TTLCacheAttrs struct {
	NumOfShards     uint8
	CleanupInterval time.Duration
	// DefaultTTL applies to Set calls that carry no ttl. Zero keeps such
	// items until they are overwritten or deleted.
	DefaultTTL time.Duration
}

// TTLCache is a sharded cache whose items expire passively on Get and
// actively through a janitor goroutine.
type TTLCache[K comparable, V any] struct {
	seed       maphash.Seed
	shards     []*ttlCacheShard[K, V]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTTLCache builds the cache and starts its janitor, which stops with ctx.
func NewTTLCache[K comparable, V any](ctx context.Context, attrs TTLCacheAttrs) *TTLCache[K, V] {
	if attrs.NumOfShards == 0 {
		panic(fmt.Errorf("number of shards must be greater than 0, got %d", attrs.NumOfShards))
	}

	c := &TTLCache[K, V]{
		seed:       maphash.MakeSeed(),
		shards:     make([]*ttlCacheShard[K, V], attrs.NumOfShards),
		defaultTTL: attrs.DefaultTTL,
		now:        time.Now,
	}

	for i := range c.shards {
		c.shards[i] = &ttlCacheShard[K, V]{items: make(map[K]ttlCacheItem[V])}
	}

	if attrs.CleanupInterval > 0 {
		go c.janitor(ctx, attrs.CleanupInterval)
	}

	return c
}

func (c *TTLCache[K, V]) janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ForceCleanup()
		}
	}
}

func (c *TTLCache[K, V]) getShard(key K) *ttlCacheShard[K, V] {
	h := maphash.Comparable(c.seed, key)
	return c.shards[h%uint64(len(c.shards))]
}

// ┌─────────────┐
// │ PUBLIC APIs │
// └─────────────┘
func (c *TTLCache[K, V]) Set(key K, value V, opts ...SetOption) bool {
	o := collect(opts)

	ttl := o.ttl
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		return false
	}

	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := c.now()
	cur, ok := shard.items[key]
	ok = ok && !cur.isExpired(now)

	if ok && o.ifAbsent {
		return false
	}
	if !ok && o.ifPresent {
		return false
	}

	item := ttlCacheItem[V]{value: value}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}
	shard.items[key] = item

	return true
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V

	shard := c.getShard(key)
	shard.mu.RLock()
	i, ok := shard.items[key]
	shard.mu.RUnlock()

	if !ok {
		return zero, false
	}

	if i.isExpired(c.now()) {
		shard.mu.Lock()
		// the item may have been replaced while the lock was released
		if cur, ok := shard.items[key]; ok && cur.expiresAt.Equal(i.expiresAt) {
			delete(shard.items, key)
		}
		shard.mu.Unlock()

		return zero, false
	}

	return i.value, true
}

func (c *TTLCache[K, V]) Delete(key K) {
	shard := c.getShard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Len counts stored items, expired ones not yet collected included.
func (c *TTLCache[K, V]) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.items)
		shard.mu.RUnlock()
	}

	return n
}

// ForceCleanup scans every shard and deletes expired items.
func (c *TTLCache[K, V]) ForceCleanup() {
	now := c.now()
	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, i := range shard.items {
			if i.isExpired(now) {
				delete(shard.items, key)
			}
		}
		shard.mu.Unlock()
	}
}
