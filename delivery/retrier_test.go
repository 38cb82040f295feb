package delivery_test

import (
	"testing"
	"time"

	"github.com/hookline/dispatch/delivery"
)

func TestRetrierClassify(t *testing.T) {
	retrier := delivery.NewRetrier(nil, 5)

	tests := []struct {
		name   string
		result delivery.Result
		want   delivery.Outcome
	}{
		{
			name:   "200 OK → Success",
			result: delivery.Result{StatusCode: 200},
			want:   delivery.Success,
		},
		{
			name:   "201 Created → Success",
			result: delivery.Result{StatusCode: 201},
			want:   delivery.Success,
		},
		{
			name:   "204 No Content → Success",
			result: delivery.Result{StatusCode: 204},
			want:   delivery.Success,
		},
		{
			name:   "299 → Success",
			result: delivery.Result{StatusCode: 299},
			want:   delivery.Success,
		},
		{
			name:   "0 (connection error) → RetryableFailure",
			result: delivery.Result{StatusCode: 0, Error: "connection refused"},
			want:   delivery.RetryableFailure,
		},
		{
			name:   "408 Request Timeout → RetryableFailure",
			result: delivery.Result{StatusCode: 408},
			want:   delivery.RetryableFailure,
		},
		{
			name:   "429 Too Many Requests → RetryableFailure",
			result: delivery.Result{StatusCode: 429},
			want:   delivery.RetryableFailure,
		},
		{
			name:   "500 Internal Server Error → RetryableFailure",
			result: delivery.Result{StatusCode: 500},
			want:   delivery.RetryableFailure,
		},
		{
			name:   "502 Bad Gateway → RetryableFailure",
			result: delivery.Result{StatusCode: 502},
			want:   delivery.RetryableFailure,
		},
		{
			name:   "503 Service Unavailable → RetryableFailure",
			result: delivery.Result{StatusCode: 503},
			want:   delivery.RetryableFailure,
		},
		{
			name:   "599 → RetryableFailure",
			result: delivery.Result{StatusCode: 599},
			want:   delivery.RetryableFailure,
		},
		{
			name:   "400 Bad Request → PermanentFailure",
			result: delivery.Result{StatusCode: 400},
			want:   delivery.PermanentFailure,
		},
		{
			name:   "401 Unauthorized → PermanentFailure",
			result: delivery.Result{StatusCode: 401},
			want:   delivery.PermanentFailure,
		},
		{
			name:   "404 Not Found → PermanentFailure",
			result: delivery.Result{StatusCode: 404},
			want:   delivery.PermanentFailure,
		},
		{
			name:   "410 Gone → PermanentFailure",
			result: delivery.Result{StatusCode: 410},
			want:   delivery.PermanentFailure,
		},
		{
			name:   "422 Unprocessable → PermanentFailure",
			result: delivery.Result{StatusCode: 422},
			want:   delivery.PermanentFailure,
		},
		{
			name:   "301 redirect → PermanentFailure",
			result: delivery.Result{StatusCode: 301},
			want:   delivery.PermanentFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retrier.Classify(tt.result); got != tt.want {
				t.Fatalf("Classify(%+v) = %v, want %v", tt.result, got, tt.want)
			}
		})
	}
}

func TestRetrierNextDelay(t *testing.T) {
	schedule := []time.Duration{
		10 * time.Second,
		30 * time.Second,
		60 * time.Second,
		5 * time.Minute,
		15 * time.Minute,
	}
	retrier := delivery.NewRetrier(schedule, 5)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 10 * time.Second},
		{attempt: 2, want: 30 * time.Second},
		{attempt: 3, want: 60 * time.Second},
		{attempt: 4, want: 5 * time.Minute},
		{attempt: 5, want: 15 * time.Minute},
		// Past the schedule end the last entry repeats.
		{attempt: 9, want: 15 * time.Minute},
	}

	for _, tt := range tests {
		if got := retrier.NextDelay(tt.attempt); got != tt.want {
			t.Fatalf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetrierShouldRetry(t *testing.T) {
	retrier := delivery.NewRetrier(nil, 5)

	if !retrier.ShouldRetry(1) {
		t.Fatal("attempt 1 of 5 should retry")
	}
	if !retrier.ShouldRetry(4) {
		t.Fatal("attempt 4 of 5 should retry")
	}
	if retrier.ShouldRetry(5) {
		t.Fatal("attempt 5 of 5 must not retry")
	}
}

func TestRetrierMaxAttemptsOne(t *testing.T) {
	// MAX_ATTEMPTS = 1 means no retry is ever scheduled.
	retrier := delivery.NewRetrier([]time.Duration{10 * time.Second}, 1)

	if retrier.ShouldRetry(1) {
		t.Fatal("with MaxAttempts=1 the first attempt is also the last")
	}
}
