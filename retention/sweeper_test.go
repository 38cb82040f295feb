package retention_test

import (
	"context"
	"testing"
	"time"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/queue"
	queuememory "github.com/hookline/dispatch/queue/memory"
	"github.com/hookline/dispatch/retention"
	"github.com/hookline/dispatch/store/memory"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

func seedAttempts(t *testing.T, store *memory.Store, n int, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()

	sub := &subscription.Subscription{
		Entity:     entity.New(),
		TargetURL:  "https://example.com/hook",
		Secret:     "secret-123",
		EventTypes: []string{"user.created"},
		IsActive:   true,
	}
	if err := store.CreateSubscription(ctx, sub); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < n; i++ {
		wh := &webhook.Webhook{
			Entity:         entity.New(),
			SubscriptionID: sub.ID,
			EventType:      "user.created",
			Payload:        []byte(`{}`),
		}
		if err := store.CreateWebhook(ctx, wh); err != nil {
			t.Fatal(err)
		}
		a := &attempt.Attempt{
			SubscriptionID: sub.ID,
			WebhookID:      wh.ID,
			AttemptNumber:  1,
			CreatedAt:      createdAt,
		}
		if err := store.RecordAttempt(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSweepPurgesOnlyExpiredAttempts(t *testing.T) {
	store := memory.New()
	q := queuememory.New(time.Second)

	now := time.Now().UTC()
	seedAttempts(t, store, 10, now.Add(-80*time.Hour))
	seedAttempts(t, store, 10, now.Add(-10*time.Hour))

	sweeper := retention.NewSweeper(store, q, retention.SweeperConfig{
		Window:    72 * time.Hour,
		BatchSize: 3,
	}, nil)

	deleted, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 10 {
		t.Fatalf("deleted = %d, want 10", deleted)
	}

	count, err := store.CountAttempts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 10 {
		t.Fatalf("remaining = %d, want the 10 recent attempts", count)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store := memory.New()
	q := queuememory.New(time.Second)

	seedAttempts(t, store, 5, time.Now().UTC().Add(-80*time.Hour))

	sweeper := retention.NewSweeper(store, q, retention.SweeperConfig{Window: 72 * time.Hour}, nil)

	if _, err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	deleted, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Fatalf("second sweep deleted %d, want 0", deleted)
	}
}

func TestSweeperConsumesCleanupLane(t *testing.T) {
	store := memory.New()
	q := queuememory.New(time.Second)

	seedAttempts(t, store, 3, time.Now().UTC().Add(-80*time.Hour))

	sweeper := retention.NewSweeper(store, q, retention.SweeperConfig{
		Window:       72 * time.Hour,
		PollInterval: 20 * time.Millisecond,
	}, nil)

	ctx := context.Background()
	if err := q.Enqueue(ctx, queue.LaneCleanup, queue.NewCleanupTask(), 0); err != nil {
		t.Fatal(err)
	}

	sweeper.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		count, err := store.CountAttempts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timeout: %d attempts remain", count)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	sweeper.Stop(ctx)

	if q.Len(queue.LaneCleanup) != 0 {
		t.Fatal("cleanup task not acked")
	}
}

func TestSchedulerEmitsCleanupTask(t *testing.T) {
	q := queuememory.New(time.Second)
	scheduler := retention.NewScheduler(q, time.Hour, nil)

	scheduler.Emit(context.Background())

	leases, err := q.Dequeue(context.Background(), queue.LaneCleanup, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(leases) != 1 {
		t.Fatalf("leases = %d, want 1", len(leases))
	}
	if leases[0].Task.Kind != queue.KindCleanup {
		t.Fatalf("kind = %s, want cleanup", leases[0].Task.Kind)
	}
}

func TestSchedulerTicks(t *testing.T) {
	q := queuememory.New(time.Second)
	scheduler := retention.NewScheduler(q, 25*time.Millisecond, nil)

	ctx := context.Background()
	scheduler.Start(ctx)

	deadline := time.After(2 * time.Second)
	for q.Len(queue.LaneCleanup) < 2 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not tick")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	scheduler.Stop(ctx)
}
