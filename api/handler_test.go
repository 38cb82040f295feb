package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/api"
	queuememory "github.com/hookline/dispatch/queue/memory"
	"github.com/hookline/dispatch/store/memory"
)

var addrSeq int

func newHandler(t *testing.T) (*api.Handler, *dispatch.Service) {
	t.Helper()

	svc, err := dispatch.New(
		dispatch.WithStore(memory.New()),
		dispatch.WithQueue(queuememory.New(time.Second)),
	)
	if err != nil {
		t.Fatal(err)
	}
	return api.NewHandler(svc, nil), svc
}

// do issues a request against the handler. Each call gets its own client
// address so per-client rate limits do not couple test cases.
func do(h *api.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	addrSeq++
	req.RemoteAddr = fmt.Sprintf("10.0.%d.%d:4242", addrSeq/250, addrSeq%250)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSubscription(t *testing.T, h *api.Handler) int64 {
	t.Helper()
	rec := do(h, http.MethodPost, "/subscriptions", map[string]any{
		"target_url":  "https://example.com/hook",
		"secret":      "secret-123",
		"event_types": []string{"user.created"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create subscription = %d: %s", rec.Code, rec.Body)
	}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out.ID
}

func TestCreateSubscriptionValidation(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(h, http.MethodPost, "/subscriptions", map[string]any{
		"target_url":  "https://example.com/hook",
		"secret":      "short",
		"event_types": []string{"user.created"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short secret = %d, want 400", rec.Code)
	}

	rec = do(h, http.MethodPost, "/subscriptions", map[string]any{
		"target_url":  "https://example.com/hook",
		"secret":      "secret-123",
		"event_types": []string{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty event types = %d, want 400", rec.Code)
	}
}

func TestIngestAccepted(t *testing.T) {
	h, _ := newHandler(t)
	subID := createSubscription(t, h)

	rec := do(h, http.MethodPost, fmt.Sprintf("/ingest/%d", subID), map[string]any{
		"event_type": "user.created",
		"payload":    map[string]any{"x": 1},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest = %d: %s", rec.Code, rec.Body)
	}

	var out struct {
		WebhookID int64  `json:"webhook_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.WebhookID == 0 || out.Status != "accepted" {
		t.Fatalf("response = %+v", out)
	}
}

func TestIngestUnknownSubscription(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(h, http.MethodPost, "/ingest/999", map[string]any{
		"event_type": "user.created",
		"payload":    map[string]any{},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ingest = %d, want 404", rec.Code)
	}
}

func TestIngestInactiveSubscription(t *testing.T) {
	h, _ := newHandler(t)
	subID := createSubscription(t, h)

	rec := do(h, http.MethodPatch, fmt.Sprintf("/subscriptions/%d/deactivate", subID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate = %d", rec.Code)
	}

	rec = do(h, http.MethodPost, fmt.Sprintf("/ingest/%d", subID), map[string]any{
		"event_type": "user.created",
		"payload":    map[string]any{},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("ingest = %d, want 409", rec.Code)
	}
}

func TestIngestUnsubscribedEventType(t *testing.T) {
	h, _ := newHandler(t)
	subID := createSubscription(t, h)

	rec := do(h, http.MethodPost, fmt.Sprintf("/ingest/%d", subID), map[string]any{
		"event_type": "order.shipped",
		"payload":    map[string]any{},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("ingest = %d, want 409", rec.Code)
	}
}

func TestIngestMalformedBody(t *testing.T) {
	h, _ := newHandler(t)
	subID := createSubscription(t, h)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/ingest/%d", subID), bytes.NewReader([]byte(`{broken`)))
	req.RemoteAddr = "10.9.9.9:4242"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ingest = %d, want 400", rec.Code)
	}
}

func TestGetWebhookWithDerivedStatus(t *testing.T) {
	h, _ := newHandler(t)
	subID := createSubscription(t, h)

	rec := do(h, http.MethodPost, fmt.Sprintf("/ingest/%d", subID), map[string]any{
		"event_type": "user.created",
		"payload":    map[string]any{"x": 1},
	})
	var accepted struct {
		WebhookID int64 `json:"webhook_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}

	rec = do(h, http.MethodGet, fmt.Sprintf("/webhooks/%d", accepted.WebhookID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get webhook = %d: %s", rec.Code, rec.Body)
	}

	var out struct {
		Status   string `json:"status"`
		Attempts []any  `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "pending" {
		t.Fatalf("status = %q, want pending before any attempt", out.Status)
	}
	if len(out.Attempts) != 0 {
		t.Fatalf("attempts = %d, want 0", len(out.Attempts))
	}
}

func TestListAttemptsUnknownSubscription(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(h, http.MethodGet, "/subscriptions/999/delivery-attempts", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("list attempts = %d, want 404", rec.Code)
	}
}

func TestDeleteSubscription(t *testing.T) {
	h, _ := newHandler(t)
	subID := createSubscription(t, h)

	rec := do(h, http.MethodDelete, fmt.Sprintf("/subscriptions/%d", subID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}

	rec = do(h, http.MethodGet, fmt.Sprintf("/subscriptions/%d", subID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}
