package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/observability"
	"github.com/hookline/dispatch/queue"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// inactiveMessage is recorded on the single terminal attempt written when the
// subscription vanished or was deactivated between ingest and delivery.
const inactiveMessage = "subscription inactive or missing"

// WorkerStore is the persistence surface the worker needs.
type WorkerStore interface {
	GetWebhook(ctx context.Context, whID int64) (*webhook.Webhook, error)
	RecordAttempt(ctx context.Context, a *attempt.Attempt) error
}

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Concurrency       int
	PollInterval      time.Duration
	BatchSize         int
	RequestTimeout    time.Duration
	BackoffSchedule   []time.Duration
	MaxAttempts       int
	ResponseBodyLimit int64
	Metrics           *observability.Metrics
	Tracer            *observability.Tracer
}

// Worker is the delivery worker pool. It consumes deliver tasks, executes one
// HTTP attempt per task, records the outcome, and schedules the next retry or
// terminates the chain.
type Worker struct {
	store   WorkerStore
	cache   subscription.Cache
	queue   queue.Queue
	sender  *Sender
	retrier *Retrier
	config  WorkerConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a delivery worker.
func NewWorker(store WorkerStore, cache subscription.Cache, q queue.Queue, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:   store,
		cache:   cache,
		queue:   q,
		sender:  NewSender(cfg.RequestTimeout, cfg.ResponseBodyLimit),
		retrier: NewRetrier(cfg.BackoffSchedule, cfg.MaxAttempts),
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the delivery workers and poll loop.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete.
func (w *Worker) Stop(_ context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// pollLoop periodically claims deliver tasks and dispatches them to workers.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			leases, err := w.queue.Dequeue(ctx, queue.LaneDeliver, w.config.BatchSize)
			if err != nil {
				w.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, lease := range leases {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				w.wg.Add(1)
				go func(l *queue.Lease) {
					defer w.wg.Done()
					defer func() { <-sem }()
					w.process(ctx, l)
				}(lease)
			}
		}
	}
}

// process executes one delivery attempt for one leased task. The lease is
// acked only after the attempt row is persisted and any follow-up retry is
// enqueued; infrastructure failures nack so the queue redelivers.
func (w *Worker) process(ctx context.Context, lease *queue.Lease) {
	t := lease.Task
	if t.Kind != queue.KindDeliver {
		w.logger.WarnContext(ctx, "unexpected task kind on deliver lane", "kind", t.Kind, "task_id", t.ID)
		w.ack(ctx, lease)
		return
	}

	// 1. Load the webhook. Gone means the subscription cascade removed it
	// mid-flight: drop the task silently.
	wh, err := w.store.GetWebhook(ctx, t.WebhookID)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			w.logger.DebugContext(ctx, "webhook gone, dropping task", "webhook_id", t.WebhookID)
			if w.config.Metrics != nil {
				w.config.Metrics.RecordAttempt("dropped", 0)
			}
			w.ack(ctx, lease)
			return
		}
		w.logger.ErrorContext(ctx, "get webhook failed", "webhook_id", t.WebhookID, "error", err)
		w.nack(ctx, lease)
		return
	}

	// 2. Resolve the subscription through the cache. Missing or inactive is
	// terminal: record a single failed attempt and stop the chain.
	sub, err := w.cache.Get(ctx, wh.SubscriptionID)
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		w.logger.ErrorContext(ctx, "get subscription failed", "subscription_id", wh.SubscriptionID, "error", err)
		w.nack(ctx, lease)
		return
	}
	if sub == nil || !sub.IsActive {
		w.recordInactive(ctx, lease, wh, t.AttemptNumber)
		return
	}

	var span trace.Span
	if w.config.Tracer != nil {
		ctx, span = w.config.Tracer.StartAttemptSpan(ctx, wh.ID, t.AttemptNumber, sub.ID)
	}

	// 3–5. Execute the HTTP attempt and classify the outcome.
	result := w.sender.Send(ctx, sub, wh, t.AttemptNumber)
	outcome := w.retrier.Classify(result)

	if span != nil {
		w.config.Tracer.EndAttemptSpan(span, result.StatusCode, result.LatencyMs, result.Error)
	}

	// 6. Record the attempt. A duplicate means a redelivered task already
	// ran this attempt number: terminal, no further retry from this copy.
	a := attemptFromResult(wh, t.AttemptNumber, result)
	if err := w.store.RecordAttempt(ctx, a); err != nil {
		if errors.Is(err, attempt.ErrDuplicate) {
			w.logger.DebugContext(ctx, "duplicate attempt, dropping task",
				"webhook_id", wh.ID, "attempt", t.AttemptNumber)
			w.ack(ctx, lease)
			return
		}
		w.logger.ErrorContext(ctx, "record attempt failed",
			"webhook_id", wh.ID, "attempt", t.AttemptNumber, "error", err)
		w.nack(ctx, lease)
		return
	}

	latencySeconds := float64(result.LatencyMs) / 1000.0

	// 7. Decide the next action.
	switch outcome {
	case Success:
		if w.config.Metrics != nil {
			w.config.Metrics.RecordAttempt("delivered", latencySeconds)
		}
		w.logger.DebugContext(ctx, "delivered",
			"webhook_id", wh.ID, "attempt", t.AttemptNumber, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case PermanentFailure:
		if w.config.Metrics != nil {
			w.config.Metrics.RecordAttempt("rejected", latencySeconds)
		}
		w.logger.WarnContext(ctx, "delivery rejected by target",
			"webhook_id", wh.ID, "attempt", t.AttemptNumber, "status", result.StatusCode)

	case RetryableFailure:
		if !w.retrier.ShouldRetry(t.AttemptNumber) {
			if w.config.Metrics != nil {
				w.config.Metrics.RecordAttempt("exhausted", latencySeconds)
			}
			w.logger.WarnContext(ctx, "delivery attempts exhausted",
				"webhook_id", wh.ID, "attempt", t.AttemptNumber, "status", result.StatusCode, "error", result.Error)
			break
		}

		delay := w.retrier.NextDelay(t.AttemptNumber)
		next := queue.NewDeliverTask(wh.ID, t.AttemptNumber+1)
		if err := w.queue.Enqueue(ctx, queue.LaneDeliver, next, delay); err != nil {
			w.logger.ErrorContext(ctx, "enqueue retry failed",
				"webhook_id", wh.ID, "attempt", t.AttemptNumber+1, "error", err)
			w.nack(ctx, lease)
			return
		}
		if w.config.Metrics != nil {
			w.config.Metrics.RecordAttempt("retried", latencySeconds)
		}
		w.logger.DebugContext(ctx, "retry scheduled",
			"webhook_id", wh.ID, "attempt", t.AttemptNumber+1, "delay", delay)
	}

	w.ack(ctx, lease)
}

// recordInactive writes the single terminal attempt for a missing or
// deactivated subscription and acks the task.
func (w *Worker) recordInactive(ctx context.Context, lease *queue.Lease, wh *webhook.Webhook, attemptNumber int) {
	msg := inactiveMessage
	a := &attempt.Attempt{
		SubscriptionID: wh.SubscriptionID,
		WebhookID:      wh.ID,
		AttemptNumber:  attemptNumber,
		ErrorMessage:   &msg,
		IsSuccess:      false,
		CreatedAt:      time.Now().UTC(),
	}
	if err := w.store.RecordAttempt(ctx, a); err != nil && !errors.Is(err, attempt.ErrDuplicate) {
		w.logger.ErrorContext(ctx, "record inactive attempt failed", "webhook_id", wh.ID, "error", err)
		w.nack(ctx, lease)
		return
	}
	if w.config.Metrics != nil {
		w.config.Metrics.RecordAttempt("dropped", 0)
	}
	w.logger.WarnContext(ctx, "subscription inactive or missing, terminating chain",
		"webhook_id", wh.ID, "subscription_id", wh.SubscriptionID)
	w.ack(ctx, lease)
}

// attemptFromResult converts a sender result into the persisted attempt row.
func attemptFromResult(wh *webhook.Webhook, attemptNumber int, res Result) *attempt.Attempt {
	a := &attempt.Attempt{
		SubscriptionID: wh.SubscriptionID,
		WebhookID:      wh.ID,
		AttemptNumber:  attemptNumber,
		IsSuccess:      res.StatusCode >= 200 && res.StatusCode < 300,
		CreatedAt:      time.Now().UTC(),
	}
	if res.StatusCode != 0 {
		code := res.StatusCode
		a.StatusCode = &code
		body := res.ResponseBody
		a.ResponseBody = &body
	}
	if res.Error != "" && !a.IsSuccess {
		msg := res.Error
		a.ErrorMessage = &msg
	}
	return a
}

// ack acknowledges the lease, logging on failure. A failed ack only costs a
// redelivery, which the duplicate-attempt rule absorbs.
func (w *Worker) ack(ctx context.Context, lease *queue.Lease) {
	if err := w.queue.Ack(ctx, lease); err != nil {
		w.logger.ErrorContext(ctx, "ack failed", "token", lease.Token, "error", err)
	}
}

// nack returns the lease for redelivery, logging on failure. A failed nack
// still redelivers once the visibility timeout lapses.
func (w *Worker) nack(ctx context.Context, lease *queue.Lease) {
	if err := w.queue.Nack(ctx, lease); err != nil {
		w.logger.ErrorContext(ctx, "nack failed", "token", lease.Token, "error", err)
	}
}
