package router

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"solana-trade-executor/internal/domain"
)

// RouteCache stores resolved routes keyed by token.
type RouteCache interface {
	Get(ctx context.Context, token string) (domain.VenueRoute, bool)
	Set(ctx context.Context, key string, route domain.VenueRoute)
	Delete(ctx context.Context, token string)
}

const (
	DefaultCacheTTL      = 45 * time.Second
	DefaultCacheCapacity = 1000
)

type memEntry struct {
	route    domain.VenueRoute
	storedAt time.Time
}

// MemoryCache is a TTL and capacity bounded route cache. When an insert
// pushes it over capacity, the oldest half of the entries is dropped.
// Lookups try the exact key, then the lowercased key.
type MemoryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time

	entries map[string]memEntry
	folded  map[string]string // lowercase key -> exact key
}

// NewMemoryCache creates a cache. ttl <= 0 disables time expiry.
func NewMemoryCache(ttl time.Duration, capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &MemoryCache{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[string]memEntry),
		folded:   make(map[string]string),
	}
}

// Get returns a live entry for token.
func (c *MemoryCache) Get(_ context.Context, token string) (domain.VenueRoute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := token
	e, ok := c.entries[key]
	if !ok {
		if key, ok = c.folded[strings.ToLower(token)]; !ok {
			return domain.VenueRoute{}, false
		}
		if e, ok = c.entries[key]; !ok {
			return domain.VenueRoute{}, false
		}
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		c.removeLocked(key)
		return domain.VenueRoute{}, false
	}
	return e.route, true
}

// Set stores route under key, evicting the oldest half when over capacity.
func (c *MemoryCache) Set(_ context.Context, key string, route domain.VenueRoute) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memEntry{route: route, storedAt: c.now()}
	c.folded[strings.ToLower(key)] = key

	if len(c.entries) > c.capacity {
		c.evictLocked()
	}
}

// Delete removes token by exact or lowercased key.
func (c *MemoryCache) Delete(_ context.Context, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[token]; ok {
		c.removeLocked(token)
		return
	}
	if key, ok := c.folded[strings.ToLower(token)]; ok {
		c.removeLocked(key)
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) removeLocked(key string) {
	delete(c.entries, key)
	folded := strings.ToLower(key)
	if c.folded[folded] == key {
		delete(c.folded, folded)
	}
}

func (c *MemoryCache) evictLocked() {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].storedAt.Before(c.entries[keys[j]].storedAt)
	})
	for _, k := range keys[:len(keys)/2] {
		c.removeLocked(k)
	}
}

// TieredCache reads through L1 then L2 and writes both. A L2 hit is copied
// into L1.
type TieredCache struct {
	L1 RouteCache
	L2 RouteCache
}

func (t TieredCache) Get(ctx context.Context, token string) (domain.VenueRoute, bool) {
	if r, ok := t.L1.Get(ctx, token); ok {
		return r, true
	}
	r, ok := t.L2.Get(ctx, token)
	if ok {
		t.L1.Set(ctx, token, r)
	}
	return r, ok
}

func (t TieredCache) Set(ctx context.Context, key string, route domain.VenueRoute) {
	t.L1.Set(ctx, key, route)
	t.L2.Set(ctx, key, route)
}

func (t TieredCache) Delete(ctx context.Context, token string) {
	t.L1.Delete(ctx, token)
	t.L2.Delete(ctx, token)
}
