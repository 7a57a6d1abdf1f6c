package universe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketpulse/internal/domain"
)

// Backend is an optional shared store consulted before the wrapped Fetcher.
// Entries expire after the TTL passed to Save.
type Backend interface {
	Load(ctx context.Context) (domain.Universe, bool, error)
	Save(ctx context.Context, u domain.Universe, ttl time.Duration) error
}

// Cache memoises a Fetcher for a fixed TTL. Invalidation is time-based only.
// The clock is injectable so expiry can be tested without waiting.
type Cache struct {
	src     Fetcher
	ttl     time.Duration
	now     func() time.Time
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex
	entry   domain.Universe
	expires time.Time
	valid   bool
}

// NewCache wraps src. ttl <= 0 disables caching. A nil now uses time.Now.
func NewCache(src Fetcher, ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		src: src,
		ttl: ttl,
		now: now,
		log: slog.Default().With("component", "universe-cache"),
	}
}

// WithBackend attaches a shared backend.
func (c *Cache) WithBackend(b Backend) *Cache {
	c.backend = b
	return c
}

// FetchUniverse returns the cached universe while it is fresh, otherwise
// fetches (backend first, then source) and caches the result. The lock is held
// across the fetch so concurrent callers share one scrape. A fetch cut short by
// ctx is returned to the caller but never cached or shared.
func (c *Cache) FetchUniverse(ctx context.Context) domain.Universe {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.valid && now.Before(c.expires) {
		return c.entry
	}

	if c.ttl > 0 && c.backend != nil {
		u, ok, err := c.backend.Load(ctx)
		if err != nil {
			c.log.Warn("universe backend load failed", "error", err)
		} else if ok && len(u.Instruments) > 0 {
			// Shared entries age from their scrape time, not from this load.
			if u.FetchedAt.IsZero() || u.FetchedAt.After(now) {
				u.FetchedAt = now
			}
			if now.Before(u.FetchedAt.Add(c.ttl)) {
				c.store(u, u.FetchedAt)
				return u
			}
		}
	}

	u := c.src.FetchUniverse(ctx)
	if c.ttl <= 0 {
		return u
	}
	if err := ctx.Err(); err != nil {
		c.log.Warn("universe fetch interrupted, not caching", "error", err)
		return u
	}
	c.store(u, now)
	if c.backend != nil {
		if err := c.backend.Save(ctx, u, c.ttl); err != nil {
			c.log.Warn("universe backend save failed", "error", err)
		}
	}
	return u
}

// Expires returns when the current entry goes stale, and whether one exists.
func (c *Cache) Expires() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expires, c.valid
}

func (c *Cache) store(u domain.Universe, from time.Time) {
	c.entry = u
	c.expires = from.Add(c.ttl)
	c.valid = true
}
