package subscription

import (
	"github.com/hookline/dispatch/internal/entity"
)

// Subscription represents a registered webhook receiver: a target URL, a
// signing secret, and the set of event types it wants delivered.
type Subscription struct {
	entity.Entity

	// ID is the serial identity assigned by the store.
	ID int64 `json:"id"`

	// TargetURL is the absolute HTTP(S) URL deliveries are POSTed to.
	TargetURL string `json:"target_url"`

	// Secret is the HMAC-SHA256 signing key for this subscription. Never serialized.
	Secret string `json:"-"`

	// EventTypes is the non-empty set of event type names this subscription
	// receives. Membership is tested exactly, no patterns.
	EventTypes []string `json:"event_types"`

	// IsActive indicates whether the subscription receives deliveries.
	// Inactive subscriptions are rejected at ingest and skipped by the worker.
	IsActive bool `json:"is_active"`
}

// HasEventType reports whether the subscription is registered for the given
// event type. Exact string membership.
func (s *Subscription) HasEventType(eventType string) bool {
	for _, et := range s.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// ListOpts configures filtering and pagination for subscription listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
