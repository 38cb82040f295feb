package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hookline/dispatch/delivery"
	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/signature"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

func testSubscription(url string) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:     entity.New(),
		ID:         1,
		TargetURL:  url,
		Secret:     "secret-123",
		EventTypes: []string{"user.created"},
		IsActive:   true,
	}
}

func testWebhook(payload string) *webhook.Webhook {
	return &webhook.Webhook{
		Entity:         entity.New(),
		ID:             42,
		SubscriptionID: 1,
		EventType:      "user.created",
		Payload:        json.RawMessage(payload),
	}
}

func TestSenderHeadersAndSignature(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewSender(5*time.Second, 4096)
	res := sender.Send(context.Background(), testSubscription(srv.URL), testWebhook(`{"a":1,"b":2}`), 3)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	if got := gotHeader.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := gotHeader.Get("X-Webhook-Event"); got != "user.created" {
		t.Fatalf("X-Webhook-Event = %q", got)
	}
	if got := gotHeader.Get("X-Webhook-Id"); got != "42" {
		t.Fatalf("X-Webhook-Id = %q", got)
	}
	if got := gotHeader.Get("X-Webhook-Attempt"); got != "3" {
		t.Fatalf("X-Webhook-Attempt = %q", got)
	}

	// The signature must verify against the exact bytes received.
	sig := gotHeader.Get("X-Webhook-Signature")
	if !signature.Verify(gotBody, "secret-123", sig) {
		t.Fatalf("signature %q does not verify against received body %q", sig, gotBody)
	}
}

func TestSenderCanonicalBody(t *testing.T) {
	// Whitespace in the stored payload must not reach the wire: the body is
	// the compacted form, and the signature covers exactly those bytes.
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewSender(5*time.Second, 4096)
	sender.Send(context.Background(), testSubscription(srv.URL), testWebhook("{ \"a\": 1,\n  \"b\": 2 }"), 1)

	if string(gotBody) != `{"a":1,"b":2}` {
		t.Fatalf("wire body = %q, want compact JSON", gotBody)
	}
}

func TestSenderCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer srv.Close()

	sender := delivery.NewSender(5*time.Second, 4096)
	res := sender.Send(context.Background(), testSubscription(srv.URL), testWebhook(`{}`), 1)

	if len(res.ResponseBody) != 4096 {
		t.Fatalf("captured %d bytes, want 4096", len(res.ResponseBody))
	}
}

func TestSenderDoesNotFollowRedirects(t *testing.T) {
	var followed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/next" {
			followed = true
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	sender := delivery.NewSender(5*time.Second, 4096)
	res := sender.Send(context.Background(), testSubscription(srv.URL), testWebhook(`{}`), 1)

	if followed {
		t.Fatal("sender followed a redirect")
	}
	if res.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", res.StatusCode)
	}
}

func TestSenderTransportError(t *testing.T) {
	sender := delivery.NewSender(1*time.Second, 4096)
	res := sender.Send(context.Background(), testSubscription("http://127.0.0.1:1"), testWebhook(`{}`), 1)

	if res.StatusCode != 0 {
		t.Fatalf("status = %d, want 0 for transport error", res.StatusCode)
	}
	if res.Error == "" {
		t.Fatal("transport error must set Error")
	}
}

func TestCanonicalBodyRejectsInvalidJSON(t *testing.T) {
	if _, err := delivery.CanonicalBody(json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
