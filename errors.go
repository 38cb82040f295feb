package dispatch

import (
	"errors"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// Sentinel errors returned by dispatch operations. Entity-level sentinels
// live next to their entities so the stores and the worker can return them
// without importing this package; they are re-exported here as the single
// error surface callers match against.
var (
	// ErrNoStore is returned when a Service is created without a store.
	ErrNoStore = errors.New("dispatch: store is required")

	// ErrNoQueue is returned when a Service is created without a queue.
	ErrNoQueue = errors.New("dispatch: queue is required")

	// ErrSubscriptionNotFound is returned when a subscription cannot be found.
	ErrSubscriptionNotFound = subscription.ErrNotFound

	// ErrSubscriptionInactive is returned when ingesting for a deactivated subscription.
	ErrSubscriptionInactive = subscription.ErrInactive

	// ErrUnknownEventType is returned when the event type is not in the subscription's set.
	ErrUnknownEventType = errors.New("dispatch: event type not subscribed")

	// ErrMalformedPayload is returned when the ingested payload is not valid
	// JSON or fails the configured schema for its event type.
	ErrMalformedPayload = errors.New("dispatch: malformed payload")

	// ErrWebhookNotFound is returned when a webhook cannot be found.
	ErrWebhookNotFound = webhook.ErrNotFound

	// ErrAttemptNotFound is returned when a delivery attempt cannot be found.
	ErrAttemptNotFound = attempt.ErrNotFound

	// ErrDuplicateAttempt is returned when recording an attempt that collides
	// on (webhook_id, attempt_number).
	ErrDuplicateAttempt = attempt.ErrDuplicate

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("dispatch: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("dispatch: migration failed")
)
