package attempt

import (
	"context"
	"time"
)

// Store defines the persistence contract for delivery attempts.
type Store interface {
	// RecordAttempt inserts a completed attempt in a single transaction and
	// assigns its ID. A collision on (webhook_id, attempt_number) returns
	// ErrDuplicate: the at-least-once loser must stop, not retry.
	RecordAttempt(ctx context.Context, a *Attempt) error

	// GetAttempt returns an attempt by ID.
	GetAttempt(ctx context.Context, attemptID int64) (*Attempt, error)

	// ListAttemptsBySubscription returns the attempt history for a
	// subscription, newest first.
	ListAttemptsBySubscription(ctx context.Context, subID int64, opts ListOpts) ([]*Attempt, error)

	// ListAttemptsByWebhook returns the full attempt chain for a webhook.
	ListAttemptsByWebhook(ctx context.Context, whID int64) ([]*Attempt, error)

	// PurgeAttemptsBefore deletes up to limit attempts completed before the
	// cutoff and reports how many were deleted. The retention sweeper calls
	// it in a loop until a batch deletes zero rows; deletes are by ID, so
	// concurrent sweeps are safe.
	PurgeAttemptsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	// CountAttempts returns the total number of recorded attempts.
	CountAttempts(ctx context.Context) (int64, error)
}
