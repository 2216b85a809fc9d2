package memory

import (
	"context"
	"sync"
	"time"

	"wallet-ledger/internal/core/ports"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// Cache stands in for the Redis idempotency cache, nonce store and rate
// limiter when Redis is disabled. Expired entries are dropped lazily.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	windows map[string]rateWindow
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		windows: make(map[string]rateWindow),
		now:     time.Now,
	}
}

func (c *Cache) get(key string) ([]byte, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(key string, value []byte, ttl time.Duration) {
	e := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
}

// Get returns nil, nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _ := c.get("idem:" + key)
	return v, nil
}

// Set keeps the first live value for key, matching the Redis cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.get("idem:" + key); ok {
		return nil
	}
	c.put("idem:"+key, value, ttl)
	return nil
}

// CheckAndSet reports true the first time scope/id is seen inside the TTL.
func (c *Cache) CheckAndSet(ctx context.Context, scope, id string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := "seen:" + scope + ":" + id
	if _, ok := c.get(key); ok {
		return false, nil
	}
	c.put(key, nil, ttl)
	return true, nil
}

func (c *Cache) Forget(ctx context.Context, scope, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, "seen:"+scope+":"+id)
	return nil
}

// Allow implements ports.RateLimiter with per-process fixed windows.
func (c *Cache) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = rateWindow{resetAt: now.Add(window)}
	}
	w.count++
	c.windows[key] = w
	return &ports.RateDecision{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: max(limit-w.count, 0),
		ResetAt:   w.resetAt,
	}, nil
}
