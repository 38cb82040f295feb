package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/queue"
	queuememory "github.com/hookline/dispatch/queue/memory"
	"github.com/hookline/dispatch/store/memory"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

func newService(t *testing.T, opts ...dispatch.Option) (*dispatch.Service, *memory.Store, *queuememory.Queue) {
	t.Helper()

	store := memory.New()
	q := queuememory.New(time.Second)

	opts = append([]dispatch.Option{
		dispatch.WithStore(store),
		dispatch.WithQueue(q),
	}, opts...)

	svc, err := dispatch.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return svc, store, q
}

func createSubscription(t *testing.T, svc *dispatch.Service) *subscription.Subscription {
	t.Helper()
	sub, err := svc.Subscriptions().Create(context.Background(), subscription.Input{
		TargetURL:  "https://example.com/hook",
		Secret:     "secret-123",
		EventTypes: []string{"user.created"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestNewRequiresStoreAndQueue(t *testing.T) {
	if _, err := dispatch.New(); !errors.Is(err, dispatch.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
	if _, err := dispatch.New(dispatch.WithStore(memory.New())); !errors.Is(err, dispatch.ErrNoQueue) {
		t.Fatalf("expected ErrNoQueue, got %v", err)
	}
}

func TestIngestPersistsAndEnqueues(t *testing.T) {
	svc, store, q := newService(t)
	sub := createSubscription(t, svc)
	ctx := context.Background()

	wh, err := svc.Ingest(ctx, sub.ID, "user.created", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if wh.ID == 0 {
		t.Fatal("expected assigned webhook ID")
	}

	// The row is durable.
	got, err := store.GetWebhook(ctx, wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EventType != "user.created" {
		t.Fatalf("event_type = %q", got.EventType)
	}

	// And exactly one deliver task is scheduled, for attempt 1.
	leases, err := q.Dequeue(ctx, queue.LaneDeliver, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(leases) != 1 {
		t.Fatalf("tasks = %d, want 1", len(leases))
	}
	if leases[0].Task.WebhookID != wh.ID || leases[0].Task.AttemptNumber != 1 {
		t.Fatalf("task = %+v", leases[0].Task)
	}
}

func TestIngestUnknownSubscription(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Ingest(context.Background(), 404, "user.created", json.RawMessage(`{}`))
	if !errors.Is(err, dispatch.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestIngestInactiveSubscription(t *testing.T) {
	svc, _, _ := newService(t)
	sub := createSubscription(t, svc)
	ctx := context.Background()

	if err := svc.Subscriptions().SetActive(ctx, sub.ID, false); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Ingest(ctx, sub.ID, "user.created", json.RawMessage(`{}`))
	if !errors.Is(err, dispatch.ErrSubscriptionInactive) {
		t.Fatalf("expected ErrSubscriptionInactive, got %v", err)
	}
}

func TestIngestUnknownEventType(t *testing.T) {
	svc, store, _ := newService(t)
	sub := createSubscription(t, svc)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, sub.ID, "order.shipped", json.RawMessage(`{}`))
	if !errors.Is(err, dispatch.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}

	// Rejected ingests leave no webhook row behind.
	whs, err := store.ListWebhooksBySubscription(ctx, sub.ID, webhook.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(whs) != 0 {
		t.Fatalf("webhooks = %d, want 0 after rejection", len(whs))
	}
}

func TestIngestMalformedPayload(t *testing.T) {
	svc, _, _ := newService(t)
	sub := createSubscription(t, svc)

	_, err := svc.Ingest(context.Background(), sub.ID, "user.created", json.RawMessage(`{broken`))
	if !errors.Is(err, dispatch.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestIngestEnforcesRegisteredSchema(t *testing.T) {
	userSchema := map[string]any{
		"type":     "object",
		"required": []any{"user_id"},
	}

	svc, _, _ := newService(t, dispatch.WithPayloadSchema("user.created", userSchema))
	sub := createSubscription(t, svc)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, sub.ID, "user.created", json.RawMessage(`{"user_id":1}`)); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Ingest(ctx, sub.ID, "user.created", json.RawMessage(`{"name":"no id"}`))
	if !errors.Is(err, dispatch.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for schema violation, got %v", err)
	}
}

func TestReconcileOrphans(t *testing.T) {
	// A zero threshold makes every attempt-less webhook an orphan right away.
	svc, _, q := newService(t, dispatch.WithReconcileAfter(0))
	sub := createSubscription(t, svc)
	ctx := context.Background()

	wh, err := svc.Ingest(ctx, sub.ID, "user.created", json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	// Drop the original task, simulating an enqueue lost to a crash.
	leases, err := q.Dequeue(ctx, queue.LaneDeliver, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, lease := range leases {
		if err := q.Ack(ctx, lease); err != nil {
			t.Fatal(err)
		}
	}

	n, err := svc.ReconcileOrphans(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reconciled = %d, want 1", n)
	}

	leases, err = q.Dequeue(ctx, queue.LaneDeliver, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(leases) != 1 || leases[0].Task.WebhookID != wh.ID || leases[0].Task.AttemptNumber != 1 {
		t.Fatalf("re-enqueued task = %+v", leases)
	}
}
