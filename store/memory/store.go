// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"

	dispatchstore "github.com/hookline/dispatch/store"
)

// compile-time interface check.
var _ dispatchstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing. It
// enforces the (webhook_id, attempt_number) uniqueness constraint and
// simulates the subscription delete cascade.
type Store struct {
	mu sync.RWMutex

	subscriptions map[int64]*subscription.Subscription
	webhooks      map[int64]*webhook.Webhook
	attempts      map[int64]*attempt.Attempt
	attemptKeys   map[[2]int64]bool // {webhook ID, attempt number} uniqueness

	nextSubID     int64
	nextWebhookID int64
	nextAttemptID int64

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		subscriptions: make(map[int64]*subscription.Subscription),
		webhooks:      make(map[int64]*webhook.Webhook),
		attempts:      make(map[int64]*attempt.Attempt),
		attemptKeys:   make(map[[2]int64]bool),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return dispatch.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

// CreateSubscription persists a subscription and assigns the next serial ID.
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	sub.ID = s.nextSubID
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(_ context.Context, subID int64) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// UpdateSubscription modifies an existing subscription.
func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[sub.ID]; !ok {
		return subscription.ErrNotFound
	}
	cp := *sub
	cp.UpdatedAt = time.Now().UTC()
	s.subscriptions[sub.ID] = &cp
	return nil
}

// DeleteSubscription removes a subscription and cascades to its webhooks and
// attempts.
func (s *Store) DeleteSubscription(_ context.Context, subID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[subID]; !ok {
		return subscription.ErrNotFound
	}
	delete(s.subscriptions, subID)

	for id, wh := range s.webhooks {
		if wh.SubscriptionID == subID {
			delete(s.webhooks, id)
		}
	}
	for id, a := range s.attempts {
		if a.SubscriptionID == subID {
			delete(s.attemptKeys, [2]int64{a.WebhookID, int64(a.AttemptNumber)})
			delete(s.attempts, id)
		}
	}
	return nil
}

// ListSubscriptions returns subscriptions ordered by ID.
func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if opts.Active != nil && sub.IsActive != *opts.Active {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// SetActive toggles a subscription's active flag.
func (s *Store) SetActive(_ context.Context, subID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return subscription.ErrNotFound
	}
	sub.IsActive = active
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

// CreateWebhook persists a webhook and assigns the next serial ID.
func (s *Store) CreateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextWebhookID++
	wh.ID = s.nextWebhookID
	cp := *wh
	s.webhooks[wh.ID] = &cp
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(_ context.Context, whID int64) (*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[whID]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	cp := *wh
	return &cp, nil
}

// ListWebhooks returns webhooks, optionally filtered, newest first.
func (s *Store) ListWebhooks(_ context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Webhook, 0, len(s.webhooks))
	for _, wh := range s.webhooks {
		if !matchWebhook(wh, opts) {
			continue
		}
		cp := *wh
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListWebhooksBySubscription returns webhooks for one subscription, newest first.
func (s *Store) ListWebhooksBySubscription(_ context.Context, subID int64, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Webhook, 0)
	for _, wh := range s.webhooks {
		if wh.SubscriptionID != subID || !matchWebhook(wh, opts) {
			continue
		}
		cp := *wh
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListOrphanWebhooks returns webhooks older than the given time with no
// recorded attempts.
func (s *Store) ListOrphanWebhooks(_ context.Context, olderThan time.Time, limit int) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempted := make(map[int64]bool, len(s.attempts))
	for _, a := range s.attempts {
		attempted[a.WebhookID] = true
	}

	result := make([]*webhook.Webhook, 0)
	for _, wh := range s.webhooks {
		if attempted[wh.ID] || !wh.CreatedAt.Before(olderThan) {
			continue
		}
		cp := *wh
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// attempt.Store
// ──────────────────────────────────────────────────

// RecordAttempt inserts an attempt, enforcing the chain uniqueness constraint.
func (s *Store) RecordAttempt(_ context.Context, a *attempt.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]int64{a.WebhookID, int64(a.AttemptNumber)}
	if s.attemptKeys[key] {
		return attempt.ErrDuplicate
	}

	s.nextAttemptID++
	a.ID = s.nextAttemptID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	s.attempts[a.ID] = &cp
	s.attemptKeys[key] = true
	return nil
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(_ context.Context, attemptID int64) (*attempt.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, attempt.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAttemptsBySubscription returns attempts for a subscription, newest first.
func (s *Store) ListAttemptsBySubscription(_ context.Context, subID int64, opts attempt.ListOpts) ([]*attempt.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*attempt.Attempt, 0)
	for _, a := range s.attempts {
		if a.SubscriptionID != subID {
			continue
		}
		if opts.Success != nil && a.IsSuccess != *opts.Success {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListAttemptsByWebhook returns the full attempt chain, by attempt number.
func (s *Store) ListAttemptsByWebhook(_ context.Context, whID int64) ([]*attempt.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*attempt.Attempt, 0)
	for _, a := range s.attempts {
		if a.WebhookID != whID {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].AttemptNumber < result[j].AttemptNumber })
	return result, nil
}

// PurgeAttemptsBefore deletes up to limit attempts older than the cutoff.
func (s *Store) PurgeAttemptsBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, a := range s.attempts {
		if limit > 0 && deleted >= int64(limit) {
			break
		}
		if a.CreatedAt.Before(cutoff) {
			delete(s.attemptKeys, [2]int64{a.WebhookID, int64(a.AttemptNumber)})
			delete(s.attempts, id)
			deleted++
		}
	}
	return deleted, nil
}

// CountAttempts returns the total number of recorded attempts.
func (s *Store) CountAttempts(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.attempts)), nil
}

func matchWebhook(wh *webhook.Webhook, opts webhook.ListOpts) bool {
	if opts.EventType != "" && wh.EventType != opts.EventType {
		return false
	}
	if opts.From != nil && wh.CreatedAt.Before(*opts.From) {
		return false
	}
	if opts.To != nil && wh.CreatedAt.After(*opts.To) {
		return false
	}
	return true
}

// applyPagination applies offset and limit to a slice.
func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return nil
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
