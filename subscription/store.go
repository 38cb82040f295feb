package subscription

import "context"

// Store defines the persistence contract for subscriptions.
type Store interface {
	// CreateSubscription persists a new subscription and assigns its ID.
	CreateSubscription(ctx context.Context, sub *Subscription) error

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID int64) (*Subscription, error)

	// UpdateSubscription modifies an existing subscription.
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// DeleteSubscription removes a subscription. Webhooks and delivery
	// attempts referencing it are removed with it (cascade).
	DeleteSubscription(ctx context.Context, subID int64) error

	// ListSubscriptions returns subscriptions, optionally filtered.
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)

	// SetActive activates or deactivates a subscription without deleting it.
	SetActive(ctx context.Context, subID int64, active bool) error
}
