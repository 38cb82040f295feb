package extension

import (
	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/queue"
	"github.com/hookline/dispatch/store"
	"github.com/hookline/dispatch/subscription"
)

// ExtOption configures the dispatch Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend via a dispatch option.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, dispatch.WithStore(s))
	}
}

// WithQueue sets the task queue backend via a dispatch option.
func WithQueue(q queue.Queue) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, dispatch.WithQueue(q))
	}
}

// WithCache sets the subscription cache via a dispatch option.
func WithCache(c subscription.Cache) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, dispatch.WithCache(c))
	}
}

// WithPrefix sets the URL prefix for all dispatch routes.
func WithPrefix(prefix string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = prefix
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithDispatchOption appends a raw dispatch.Option to the extension.
func WithDispatchOption(opt dispatch.Option) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, opt)
	}
}

// WithDisableRoutes sets Config.DisableRoutes. The package registers no
// routes, so the flag has no effect inside it.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrations disables the database migration that Init runs.
func WithDisableMigrations() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
