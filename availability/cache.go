// Package availability caches the advisory seat check the enrollment wizard
// runs when it opens. Seat limits are enforced at commit, so a stale answer
// only affects the hint shown to the camper.
package availability

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"campkit/enrollment"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 30 * time.Second
)

// Config bounds the cache.
type Config struct {
	Size int
	TTL  time.Duration
}

// Cache wraps an AvailabilityChecker with an LRU whose entries expire after TTL.
// Errors are never cached.
type Cache struct {
	delegate enrollment.AvailabilityChecker
	entries  *expirable.LRU[string, enrollment.Availability]
}

func NewCache(delegate enrollment.AvailabilityChecker, cfg Config) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	return &Cache{
		delegate: delegate,
		entries:  expirable.NewLRU[string, enrollment.Availability](cfg.Size, nil, cfg.TTL),
	}
}

func (c *Cache) CheckAvailability(ctx context.Context, tripID string) (enrollment.Availability, error) {
	if a, ok := c.entries.Get(tripID); ok {
		return a, nil
	}
	a, err := c.delegate.CheckAvailability(ctx, tripID)
	if err != nil {
		return a, err
	}
	c.entries.Add(tripID, a)
	return a, nil
}

// Invalidate drops the cached answer for a trip, e.g. after a seat changes hands.
func (c *Cache) Invalidate(tripID string) { c.entries.Remove(tripID) }

// Len reports the number of live entries.
func (c *Cache) Len() int { return c.entries.Len() }

var _ enrollment.AvailabilityChecker = (*Cache)(nil)
