package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hookline/dispatch/delivery"
	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/observability"
	"github.com/hookline/dispatch/queue"
	"github.com/hookline/dispatch/retention"
	"github.com/hookline/dispatch/schema"
	"github.com/hookline/dispatch/store"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// Service is the root webhook delivery service: ingest, delivery, retention.
type Service struct {
	config  Config
	store   store.Store
	queue   queue.Queue
	cache   subscription.Cache
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	schemas   map[string]any
	validator *schema.Validator

	subscriptionSvc *subscription.Service
	worker          *delivery.Worker
	scheduler       *retention.Scheduler
	sweeper         *retention.Sweeper
}

// New creates a new Service with the given options. A store and a queue are
// required; everything else has defaults.
func New(opts ...Option) (*Service, error) {
	svc := &Service{
		config:  DefaultConfig(),
		logger:  slog.Default(),
		schemas: make(map[string]any),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.store == nil {
		return nil, ErrNoStore
	}
	if svc.queue == nil {
		return nil, ErrNoQueue
	}
	svc.wireServices()
	return svc, nil
}

// wireServices initializes the internal services after options have been applied.
func (svc *Service) wireServices() {
	svc.validator = schema.NewValidator()

	svc.subscriptionSvc = subscription.NewService(svc.store, svc.cache, svc.logger)

	// Without a shared cache, the worker falls back to direct store reads.
	workerCache := svc.cache
	if workerCache == nil {
		workerCache = storeCache{svc.store}
	}

	svc.worker = delivery.NewWorker(svc.store, workerCache, svc.queue, delivery.WorkerConfig{
		Concurrency:       svc.config.Concurrency,
		PollInterval:      svc.config.PollInterval,
		BatchSize:         svc.config.BatchSize,
		RequestTimeout:    svc.config.RequestTimeout,
		BackoffSchedule:   svc.config.BackoffSchedule,
		MaxAttempts:       svc.config.MaxAttempts,
		ResponseBodyLimit: svc.config.ResponseBodyLimit,
		Metrics:           svc.metrics,
		Tracer:            svc.tracer,
	}, svc.logger)

	svc.scheduler = retention.NewScheduler(svc.queue, svc.config.CleanupInterval, svc.logger)

	svc.sweeper = retention.NewSweeper(svc.store, svc.queue, retention.SweeperConfig{
		Window:       svc.config.RetentionWindow,
		BatchSize:    svc.config.CleanupBatchSize,
		PollInterval: svc.config.PollInterval,
		Metrics:      svc.metrics,
	}, svc.logger)
}

// Start begins the delivery worker, the cleanup scheduler, and the retention
// sweeper.
func (svc *Service) Start(ctx context.Context) {
	svc.worker.Start(ctx)
	svc.scheduler.Start(ctx)
	svc.sweeper.Start(ctx)
}

// Stop gracefully shuts down the background loops, waiting for in-flight
// deliveries.
func (svc *Service) Stop(ctx context.Context) {
	svc.scheduler.Stop(ctx)
	svc.worker.Stop(ctx)
	svc.sweeper.Stop(ctx)
}

// Ingest accepts an event for a subscription, durably persists a webhook row,
// and enqueues its first delivery attempt.
//
// The critical path:
//  1. Load the subscription from the store (fresh, not cached: the caller is
//     told the truth about inactive subscriptions).
//  2. Reject inactive subscriptions and unsubscribed event types.
//  3. Validate the payload: well-formed JSON, plus the event type's JSON
//     Schema when one is registered.
//  4. Persist the webhook, then enqueue the deliver task. The row commits
//     before the enqueue; if the enqueue fails the row stays behind for
//     ReconcileOrphans.
func (svc *Service) Ingest(ctx context.Context, subscriptionID int64, eventType string, payload json.RawMessage) (*webhook.Webhook, error) {
	if svc.tracer != nil {
		var span trace.Span
		ctx, span = svc.tracer.StartIngestSpan(ctx, subscriptionID, eventType)
		defer span.End()
	}

	sub, err := svc.store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrSubscriptionInactive, subscriptionID)
	}
	if !sub.HasEventType(eventType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedPayload)
	}
	if s, ok := svc.schemas[eventType]; ok {
		if validateErr := svc.validator.ValidateRaw(s, payload); validateErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, validateErr.Error())
		}
	}

	wh := &webhook.Webhook{
		Entity:         entity.New(),
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		Payload:        payload,
	}
	if createErr := svc.store.CreateWebhook(ctx, wh); createErr != nil {
		return nil, fmt.Errorf("dispatch: persist webhook: %w", createErr)
	}

	t := queue.NewDeliverTask(wh.ID, 1)
	if enqueueErr := svc.queue.Enqueue(ctx, queue.LaneDeliver, t, 0); enqueueErr != nil {
		// The webhook row is already durable; surface the queue failure so
		// the caller sees 503 while the row waits for reconciliation.
		return nil, fmt.Errorf("dispatch: enqueue delivery: %w", enqueueErr)
	}

	if svc.metrics != nil {
		svc.metrics.WebhooksIngestedTotal.Inc()
	}

	svc.logger.DebugContext(ctx, "webhook ingested",
		"webhook_id", wh.ID,
		"subscription_id", subscriptionID,
		"event_type", eventType,
	)

	return wh, nil
}

// ReconcileOrphans re-enqueues webhooks that committed but never got a
// deliver task: rows older than the configured threshold with zero recorded
// attempts. Returns the number of tasks enqueued. Safe to run repeatedly;
// a duplicate enqueue costs one redundant attempt that the chain uniqueness
// constraint absorbs.
func (svc *Service) ReconcileOrphans(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	olderThan := time.Now().UTC().Add(-svc.config.ReconcileAfter)

	orphans, err := svc.store.ListOrphanWebhooks(ctx, olderThan, batch)
	if err != nil {
		return 0, fmt.Errorf("dispatch: list orphans: %w", err)
	}

	var enqueued int
	for _, wh := range orphans {
		t := queue.NewDeliverTask(wh.ID, 1)
		if err := svc.queue.Enqueue(ctx, queue.LaneDeliver, t, 0); err != nil {
			return enqueued, fmt.Errorf("dispatch: re-enqueue webhook %d: %w", wh.ID, err)
		}
		enqueued++
	}

	if enqueued > 0 {
		svc.logger.InfoContext(ctx, "orphaned webhooks re-enqueued", "count", enqueued)
	}
	return enqueued, nil
}

// Subscriptions returns the subscription management service.
func (svc *Service) Subscriptions() *subscription.Service {
	return svc.subscriptionSvc
}

// Store returns the underlying store.
func (svc *Service) Store() store.Store {
	return svc.store
}

// Queue returns the underlying task queue.
func (svc *Service) Queue() queue.Queue {
	return svc.queue
}

// Config returns the effective configuration.
func (svc *Service) Config() Config {
	return svc.config
}

// storeCache adapts the store to the Cache interface for cache-less setups.
type storeCache struct {
	store store.Store
}

func (c storeCache) Get(ctx context.Context, subID int64) (*subscription.Subscription, error) {
	return c.store.GetSubscription(ctx, subID)
}

func (c storeCache) Invalidate(context.Context, int64) error { return nil }
