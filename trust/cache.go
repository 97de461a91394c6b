package trust

import (
	"context"
	"sync"
	"time"

	"github.com/pollenlabs/nectar-gateway/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Lookup is the remote side of the cache, implemented by *Client
type Lookup interface {
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
	ValidateReferrerDomain(ctx context.Context, domain string) (*models.Identity, error)
	LookupUpstreamID(ctx context.Context, id string) (*models.Identity, error)
}

// cacheEntry holds one lookup result. A nil identity is a cached negative:
// the trust service definitively reported no match.
type cacheEntry struct {
	identity   *models.Identity
	insertedAt time.Time
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.insertedAt) > ttl
}

// Cache is a time-bounded cache-aside wrapper around the trust service.
// Positive and negative results are both cached for a fixed TTL; concurrent
// lookups for an identical key coalesce into one remote call. A remote
// failure degrades to an unverified (nil) identity and is never cached, so
// the next request retries.
type Cache struct {
	remote Lookup
	ttl    time.Duration
	logger *zap.Logger

	// now is replaceable in tests
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
	flight  singleflight.Group
	hits    uint64
	misses  uint64
}

// NewCache creates a Cache over the given remote lookup
func NewCache(remote Lookup, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		remote:  remote,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

// ValidateToken resolves a bearer token, consulting the cache first
func (c *Cache) ValidateToken(ctx context.Context, token string) *models.Identity {
	return c.lookup(ctx, "token:"+token, "token", models.RedactToken(token), func(ctx context.Context) (*models.Identity, error) {
		return c.remote.ValidateToken(ctx, token)
	})
}

// ValidateReferrerDomain resolves a referrer domain, consulting the cache first
func (c *Cache) ValidateReferrerDomain(ctx context.Context, domain string) *models.Identity {
	return c.lookup(ctx, "referrer:"+domain, "referrer", domain, func(ctx context.Context) (*models.Identity, error) {
		return c.remote.ValidateReferrerDomain(ctx, domain)
	})
}

// LookupUpstreamID resolves an upstream identity id, consulting the cache first
func (c *Cache) LookupUpstreamID(ctx context.Context, id string) *models.Identity {
	return c.lookup(ctx, "upstream:"+id, "upstream_id", id, func(ctx context.Context) (*models.Identity, error) {
		return c.remote.LookupUpstreamID(ctx, id)
	})
}

// lookup implements the cache-aside path shared by all three checks.
// kind and redacted feed log lines only; key is never logged because it may
// contain raw credential material.
func (c *Cache) lookup(ctx context.Context, key, kind, redacted string, fetch func(context.Context) (*models.Identity, error)) *models.Identity {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if !entry.isExpired(c.now(), c.ttl) {
			c.hits++
			c.mu.Unlock()
			return entry.identity
		}
		delete(c.entries, key)
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		identity, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = &cacheEntry{identity: identity, insertedAt: c.now()}
		c.mu.Unlock()
		return identity, nil
	})
	if err != nil {
		c.logger.Warn("trust lookup failed, treating as unverified",
			zap.String("kind", kind),
			zap.String("credential", redacted),
			zap.Error(err))
		return nil
	}

	identity, _ := v.(*models.Identity)
	return identity
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:    len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// calculateHitRate calculates the cache hit rate (must be called with lock held)
func (c *Cache) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if entry.isExpired(now, c.ttl) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker starts a background worker to periodically clean up
// expired entries. Returns when ctx is cancelled.
func (c *Cache) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}
