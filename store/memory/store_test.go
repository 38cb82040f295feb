package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/store/memory"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

func seedSubscription(t *testing.T, s *memory.Store) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity:     entity.New(),
		TargetURL:  "https://example.com/hook",
		Secret:     "secret-123",
		EventTypes: []string{"user.created"},
		IsActive:   true,
	}
	if err := s.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func seedWebhook(t *testing.T, s *memory.Store, subID int64) *webhook.Webhook {
	t.Helper()
	wh := &webhook.Webhook{
		Entity:         entity.New(),
		SubscriptionID: subID,
		EventType:      "user.created",
		Payload:        []byte(`{"x":1}`),
	}
	if err := s.CreateWebhook(context.Background(), wh); err != nil {
		t.Fatal(err)
	}
	return wh
}

func record(t *testing.T, s *memory.Store, subID, whID int64, number int, createdAt time.Time) *attempt.Attempt {
	t.Helper()
	a := &attempt.Attempt{
		SubscriptionID: subID,
		WebhookID:      whID,
		AttemptNumber:  number,
		IsSuccess:      false,
		CreatedAt:      createdAt,
	}
	if err := s.RecordAttempt(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSerialIDs(t *testing.T) {
	s := memory.New()
	first := seedSubscription(t, s)
	second := seedSubscription(t, s)

	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("IDs = %d, %d; want 1, 2", first.ID, second.ID)
	}
}

func TestAttemptUniqueness(t *testing.T) {
	s := memory.New()
	sub := seedSubscription(t, s)
	wh := seedWebhook(t, s, sub.ID)

	record(t, s, sub.ID, wh.ID, 1, time.Now())

	dup := &attempt.Attempt{
		SubscriptionID: sub.ID,
		WebhookID:      wh.ID,
		AttemptNumber:  1,
		CreatedAt:      time.Now(),
	}
	if err := s.RecordAttempt(context.Background(), dup); !errors.Is(err, attempt.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestDeleteSubscriptionCascades(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	sub := seedSubscription(t, s)
	wh := seedWebhook(t, s, sub.ID)
	record(t, s, sub.ID, wh.ID, 1, time.Now())

	if err := s.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetWebhook(ctx, wh.ID); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("webhook survived cascade: %v", err)
	}
	count, err := s.CountAttempts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("attempts survived cascade: %d", count)
	}

	// The chain key is released with the cascade: a new webhook can start at 1.
	sub2 := seedSubscription(t, s)
	wh2 := seedWebhook(t, s, sub2.ID)
	record(t, s, sub2.ID, wh2.ID, 1, time.Now())
}

func TestPurgeAttemptsBefore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	sub := seedSubscription(t, s)

	now := time.Now().UTC()
	old := now.Add(-80 * time.Hour)
	recent := now.Add(-10 * time.Hour)

	// 10 attempts at now-80h and 10 at now-10h, one webhook each.
	for i := 0; i < 10; i++ {
		wh := seedWebhook(t, s, sub.ID)
		record(t, s, sub.ID, wh.ID, 1, old)
	}
	for i := 0; i < 10; i++ {
		wh := seedWebhook(t, s, sub.ID)
		record(t, s, sub.ID, wh.ID, 1, recent)
	}

	cutoff := now.Add(-72 * time.Hour)
	var total int64
	for {
		n, err := s.PurgeAttemptsBefore(ctx, cutoff, 3)
		if err != nil {
			t.Fatal(err)
		}
		if n > 3 {
			t.Fatalf("batch %d exceeded limit", n)
		}
		total += n
		if n == 0 {
			break
		}
	}

	if total != 10 {
		t.Fatalf("purged %d, want 10", total)
	}
	count, err := s.CountAttempts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 10 {
		t.Fatalf("remaining = %d, want the 10 recent attempts", count)
	}
}

func TestListOrphanWebhooks(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	sub := seedSubscription(t, s)

	orphan := seedWebhook(t, s, sub.ID)
	attempted := seedWebhook(t, s, sub.ID)
	record(t, s, sub.ID, attempted.ID, 1, time.Now())

	got, err := s.ListOrphanWebhooks(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != orphan.ID {
		t.Fatalf("orphans = %+v, want just webhook %d", got, orphan.ID)
	}

	// Fresh webhooks are not yet orphans.
	got, err = s.ListOrphanWebhooks(ctx, time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("fresh webhook reported as orphan: %+v", got)
	}
}

func TestListAttemptsByWebhookOrdersByNumber(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	sub := seedSubscription(t, s)
	wh := seedWebhook(t, s, sub.ID)

	record(t, s, sub.ID, wh.ID, 2, time.Now())
	record(t, s, sub.ID, wh.ID, 1, time.Now())
	record(t, s, sub.ID, wh.ID, 3, time.Now())

	attempts, err := s.ListAttemptsByWebhook(ctx, wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, a := range attempts {
		if a.AttemptNumber != i+1 {
			t.Fatalf("attempts out of order: %+v", attempts)
		}
	}
}
