package dispatch

import (
	"log/slog"
	"time"

	"github.com/hookline/dispatch/observability"
	"github.com/hookline/dispatch/queue"
	"github.com/hookline/dispatch/store"
	"github.com/hookline/dispatch/subscription"
)

// Option configures a Service instance.
type Option func(*Service) error

// WithStore sets the persistence backend for the Service.
func WithStore(s store.Store) Option {
	return func(svc *Service) error {
		svc.store = s
		return nil
	}
}

// WithQueue sets the task queue backend for the Service.
func WithQueue(q queue.Queue) Option {
	return func(svc *Service) error {
		svc.queue = q
		return nil
	}
}

// WithCache sets the subscription cache. Without one, the worker reads
// subscriptions straight from the store on every attempt.
func WithCache(c subscription.Cache) Option {
	return func(svc *Service) error {
		svc.cache = c
		return nil
	}
}

// WithLogger sets the structured logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) error {
		svc.logger = logger
		return nil
	}
}

// WithMetrics sets the metric instruments for the Service.
func WithMetrics(m *observability.Metrics) Option {
	return func(svc *Service) error {
		svc.metrics = m
		return nil
	}
}

// WithTracer sets the tracer for the Service.
func WithTracer(t *observability.Tracer) Option {
	return func(svc *Service) error {
		svc.tracer = t
		return nil
	}
}

// WithConcurrency sets the number of in-flight deliveries per worker process.
func WithConcurrency(n int) Option {
	return func(svc *Service) error {
		svc.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the worker checks for due deliver tasks.
func WithPollInterval(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of tasks claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(svc *Service) error {
		svc.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the hard HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.RequestTimeout = d
		return nil
	}
}

// WithMaxAttempts sets the inclusive cap on delivery attempts per webhook.
func WithMaxAttempts(n int) Option {
	return func(svc *Service) error {
		svc.config.MaxAttempts = n
		return nil
	}
}

// WithBackoffSchedule sets the delays separating successive attempts.
func WithBackoffSchedule(schedule []time.Duration) Option {
	return func(svc *Service) error {
		svc.config.BackoffSchedule = schedule
		return nil
	}
}

// WithRetentionWindow sets how long delivery attempts are retained.
func WithRetentionWindow(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.RetentionWindow = d
		return nil
	}
}

// WithCleanupInterval sets how often a cleanup task is emitted.
func WithCleanupInterval(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.CleanupInterval = d
		return nil
	}
}

// WithSubscriptionCacheTTL sets the staleness bound for cached subscriptions.
func WithSubscriptionCacheTTL(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.SubscriptionCacheTTL = d
		return nil
	}
}

// WithResponseBodyLimit caps how much of a target's response body is stored.
func WithResponseBodyLimit(n int64) Option {
	return func(svc *Service) error {
		svc.config.ResponseBodyLimit = n
		return nil
	}
}

// WithReconcileAfter sets the age past which a webhook with no attempts is
// considered orphaned by ReconcileOrphans.
func WithReconcileAfter(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.ReconcileAfter = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum wait for in-flight deliveries on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(svc *Service) error {
		svc.config.ShutdownTimeout = d
		return nil
	}
}

// WithPayloadSchema registers a JSON Schema that ingested payloads of the
// given event type must satisfy. Event types without a schema accept any
// JSON value.
func WithPayloadSchema(eventType string, schema any) Option {
	return func(svc *Service) error {
		svc.schemas[eventType] = schema
		return nil
	}
}
