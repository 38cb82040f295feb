package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for dispatch, backed by any go-utils
// MetricFactory.
type Metrics struct {
	WebhooksIngestedTotal gu.Counter
	AttemptsTotal         gu.Counter
	AttemptLatency        gu.Histogram
	PendingTasks          gu.Gauge
	AttemptsPurgedTotal   gu.Counter
}

// NewMetrics creates dispatch metric instruments using the supplied factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		WebhooksIngestedTotal: factory.Counter("dispatch_webhooks_ingested_total"),
		AttemptsTotal:         factory.Counter("dispatch_delivery_attempts_total"),
		AttemptLatency:        factory.Histogram("dispatch_delivery_attempt_latency_seconds"),
		PendingTasks:          factory.Gauge("dispatch_pending_tasks"),
		AttemptsPurgedTotal:   factory.Counter("dispatch_attempts_purged_total"),
	}
}

// RecordAttempt records a delivery attempt with the given outcome and latency.
// outcome is one of "delivered", "retried", "rejected", "exhausted", "dropped".
func (m *Metrics) RecordAttempt(outcome string, latencySeconds float64) {
	m.AttemptsTotal.WithLabels(map[string]string{"outcome": outcome}).Inc()
	m.AttemptLatency.Observe(latencySeconds)
}
