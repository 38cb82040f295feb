package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	cachememory "github.com/hookline/dispatch/cache/memory"
	"github.com/hookline/dispatch/store/memory"
	"github.com/hookline/dispatch/subscription"
)

func newService(t *testing.T) (*subscription.Service, *memory.Store, *cachememory.Cache) {
	t.Helper()
	store := memory.New()
	cache := cachememory.New(store, time.Minute)
	return subscription.NewService(store, cache, nil), store, cache
}

func validInput() subscription.Input {
	return subscription.Input{
		TargetURL:  "https://example.com/webhooks",
		Secret:     "secret-123",
		EventTypes: []string{"user.created", "order.updated"},
	}
}

func TestCreateSubscription(t *testing.T) {
	svc, _, _ := newService(t)

	sub, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	if sub.ID == 0 {
		t.Fatal("expected assigned ID")
	}
	if !sub.IsActive {
		t.Fatal("new subscriptions start active")
	}
	if !sub.HasEventType("user.created") || sub.HasEventType("user.deleted") {
		t.Fatal("event type membership is exact")
	}
}

func TestCreateGeneratesSecretWhenOmitted(t *testing.T) {
	svc, _, _ := newService(t)

	in := validInput()
	in.Secret = ""
	sub, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Secret) < 8 {
		t.Fatalf("generated secret too short: %d", len(sub.Secret))
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*subscription.Input)
	}{
		{"empty target URL", func(in *subscription.Input) { in.TargetURL = "" }},
		{"relative URL", func(in *subscription.Input) { in.TargetURL = "/webhooks" }},
		{"non-http scheme", func(in *subscription.Input) { in.TargetURL = "ftp://example.com/x" }},
		{"short secret", func(in *subscription.Input) { in.Secret = "short" }},
		{"secret with spaces", func(in *subscription.Input) { in.Secret = "bad secret here" }},
		{"empty event types", func(in *subscription.Input) { in.EventTypes = nil }},
		{"too many event types", func(in *subscription.Input) {
			in.EventTypes = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
		}},
		{"event type with illegal chars", func(in *subscription.Input) { in.EventTypes = []string{"user created"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(ctx, in)
			var verr *subscription.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	svc, _, cache := newService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	// Warm the cache, then mutate through the service.
	if _, err := cache.Get(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Update(ctx, sub.ID, subscription.Input{TargetURL: "https://example.com/v2"}); err != nil {
		t.Fatal(err)
	}

	// invalidate(id); get(id) returns the post-mutation state.
	got, err := cache.Get(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TargetURL != "https://example.com/v2" {
		t.Fatalf("cache returned stale target URL %q after invalidation", got.TargetURL)
	}
}

func TestSetActiveInvalidatesCache(t *testing.T) {
	svc, _, cache := newService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Get(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetActive(ctx, sub.ID, false); err != nil {
		t.Fatal(err)
	}

	got, err := cache.Get(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Fatal("cache returned active subscription after deactivation")
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetSubscription(ctx, sub.ID); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, sub.ID); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("double delete should return ErrNotFound, got %v", err)
	}
}

func TestRotateSecret(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	newSecret, err := svc.RotateSecret(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if newSecret == "secret-123" {
		t.Fatal("rotation must change the secret")
	}

	got, err := store.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != newSecret {
		t.Fatal("rotated secret not persisted")
	}
}
