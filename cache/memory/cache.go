// Package memory provides an in-memory subscription cache for unit testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hookline/dispatch/subscription"
)

// compile-time interface check.
var _ subscription.Cache = (*Cache)(nil)

type cached struct {
	sub       *subscription.Subscription
	expiresAt time.Time
}

// Cache is a map-backed read-through subscription cache with TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[int64]*cached
	store   subscription.Store
	ttl     time.Duration

	// Hits and Misses count cache outcomes for test assertions.
	Hits   int
	Misses int
}

// New creates an in-memory cache reading through to subs with the given TTL.
func New(subs subscription.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		entries: make(map[int64]*cached),
		store:   subs,
		ttl:     ttl,
	}
}

// Get returns the cached subscription, reading through on miss or expiry.
func (c *Cache) Get(ctx context.Context, subID int64) (*subscription.Subscription, error) {
	c.mu.Lock()
	if e, ok := c.entries[subID]; ok && time.Now().Before(e.expiresAt) {
		c.Hits++
		sub := e.sub
		c.mu.Unlock()
		return sub, nil
	}
	c.Misses++
	c.mu.Unlock()

	sub, err := c.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[subID] = &cached{sub: sub, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return sub, nil
}

// Invalidate removes the cached entry.
func (c *Cache) Invalidate(_ context.Context, subID int64) error {
	c.mu.Lock()
	delete(c.entries, subID)
	c.mu.Unlock()
	return nil
}
