package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hookline/dispatch/signature"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// Sender performs one HTTP webhook delivery.
type Sender struct {
	client    *http.Client
	bodyLimit int64
}

// NewSender creates a sender with the given request timeout and response
// body capture limit. Redirects are never followed: a redirecting target is
// a failed delivery, not an invitation.
func NewSender(timeout time.Duration, bodyLimit int64) *Sender {
	if bodyLimit <= 0 {
		bodyLimit = 4096
	}
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		bodyLimit: bodyLimit,
	}
}

// CanonicalBody returns the exact bytes that are signed and sent for a
// payload: the stored JSON compacted, so the signature is stable regardless
// of how the payload was formatted at ingest.
func CanonicalBody(payload json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Send delivers a webhook to its subscription's target URL and returns the
// result. Transport failures surface in Result.Error with StatusCode 0.
func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, wh *webhook.Webhook, attemptNumber int) Result {
	body, err := CanonicalBody(wh.Payload)
	if err != nil {
		return Result{Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Dispatch/1.0")
	req.Header.Set("X-Webhook-Signature", signature.Sign(body, sub.Secret))
	req.Header.Set("X-Webhook-Event", wh.EventType)
	req.Header.Set("X-Webhook-Id", strconv.FormatInt(wh.ID, 10))
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(attemptNumber))

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a user-configured webhook destination; SSRF is by design.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, s.bodyLimit))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(respBody),
		LatencyMs:    int(latency),
	}
}
