package subscription

import "context"

// Cache is a read-through, write-invalidated cache of subscriptions keyed by
// ID. It keeps the delivery hot path off the database.
//
// Consistency model: entries may be stale for at most one TTL interval after
// a missed invalidation. Callers on the delivery path must tolerate a cached
// entry that was recently deactivated; one extra delivery in that window is
// acceptable.
type Cache interface {
	// Get returns the subscription, fetching from the store and populating
	// the cache on miss. A missing subscription surfaces the store's error.
	Get(ctx context.Context, subID int64) (*Subscription, error)

	// Invalidate removes the cached entry. Called on every mutation.
	Invalidate(ctx context.Context, subID int64) error
}
