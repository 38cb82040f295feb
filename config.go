package dispatch

import "time"

// Config holds the configuration for a dispatch Service.
type Config struct {
	// Concurrency is the number of in-flight deliveries per worker process.
	Concurrency int

	// PollInterval is how often the worker checks for due deliver tasks.
	PollInterval time.Duration

	// BatchSize is the maximum number of tasks claimed per poll cycle.
	BatchSize int

	// RequestTimeout is the hard HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the inclusive cap on delivery attempts per webhook.
	MaxAttempts int

	// BackoffSchedule defines the delay after attempt N fails retryably.
	BackoffSchedule []time.Duration

	// RetentionWindow is how long delivery attempts are retained before the
	// sweeper purges them.
	RetentionWindow time.Duration

	// CleanupInterval is how often the scheduler emits a cleanup task.
	CleanupInterval time.Duration

	// CleanupBatchSize bounds each retention DELETE statement.
	CleanupBatchSize int

	// SubscriptionCacheTTL bounds staleness of cached subscription snapshots.
	SubscriptionCacheTTL time.Duration

	// ResponseBodyLimit caps how much of a target's response body is stored.
	ResponseBodyLimit int64

	// VisibilityTimeout is how long a claimed task stays invisible before
	// the queue hands it out again.
	VisibilityTimeout time.Duration

	// ReconcileAfter is the age past which a webhook with no attempts is
	// considered orphaned by ReconcileOrphans.
	ReconcileAfter time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries
	// on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultBackoffSchedule is the delay applied after each failed attempt:
// attempt 1 → 10s, 2 → 30s, 3 → 60s, 4 → 5m, 5 → 15m (unused: 5 is the last).
var DefaultBackoffSchedule = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	5 * time.Minute,
	15 * time.Minute,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:          200,
		PollInterval:         1 * time.Second,
		BatchSize:            50,
		RequestTimeout:       10 * time.Second,
		MaxAttempts:          5,
		BackoffSchedule:      DefaultBackoffSchedule,
		RetentionWindow:      72 * time.Hour,
		CleanupInterval:      60 * time.Minute,
		CleanupBatchSize:     1000,
		SubscriptionCacheTTL: 300 * time.Second,
		ResponseBodyLimit:    4096,
		VisibilityTimeout:    30 * time.Second,
		ReconcileAfter:       15 * time.Minute,
		ShutdownTimeout:      30 * time.Second,
	}
}
