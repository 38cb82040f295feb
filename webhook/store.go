package webhook

import (
	"context"
	"time"
)

// Store defines the persistence contract for webhooks.
type Store interface {
	// CreateWebhook persists a webhook and assigns its ID. Must be durable
	// before returning: the delivery task is only enqueued afterwards.
	CreateWebhook(ctx context.Context, wh *Webhook) error

	// GetWebhook returns a webhook by ID.
	GetWebhook(ctx context.Context, whID int64) (*Webhook, error)

	// ListWebhooks returns webhooks, optionally filtered.
	ListWebhooks(ctx context.Context, opts ListOpts) ([]*Webhook, error)

	// ListWebhooksBySubscription returns webhooks for one subscription.
	ListWebhooksBySubscription(ctx context.Context, subID int64, opts ListOpts) ([]*Webhook, error)

	// ListOrphanWebhooks returns webhooks created before the given time that
	// have no delivery attempts at all. These are the rows stranded by a
	// crash between the webhook insert and the queue enqueue; the
	// reconciler re-enqueues them.
	ListOrphanWebhooks(ctx context.Context, olderThan time.Time, limit int) ([]*Webhook, error)
}
