// Package store defines the composite Store interface for all dispatch
// persistence.
//
// Each subsystem defines its own store interface next to its entity, and the
// aggregate Store composes them all. Backends implement the aggregate.
package store

import (
	"context"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// Store is the aggregate persistence interface.
type Store interface {
	subscription.Store
	webhook.Store
	attempt.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
