package webhook

import (
	"encoding/json"
	"time"

	"github.com/hookline/dispatch/internal/entity"
)

// Webhook is one ingested event bound to a subscription: the unit that is
// delivered. Created exactly once at ingest, never mutated, removed only by
// cascade when its subscription is deleted.
type Webhook struct {
	entity.Entity

	// ID is the serial identity assigned by the store.
	ID int64 `json:"id"`

	// SubscriptionID references the owning subscription.
	SubscriptionID int64 `json:"subscription_id"`

	// EventType names the event. Guaranteed to be in the subscription's
	// event type set at ingest time.
	EventType string `json:"event_type"`

	// Payload is the event body, opaque JSON. The worker compacts it into
	// the canonical bytes that are both signed and sent.
	Payload json.RawMessage `json:"payload"`
}

// ListOpts configures filtering and pagination for webhook listing.
type ListOpts struct {
	Offset    int
	Limit     int
	EventType string
	From      *time.Time
	To        *time.Time
}
