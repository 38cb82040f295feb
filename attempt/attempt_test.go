package attempt_test

import (
	"testing"

	"github.com/hookline/dispatch/attempt"
)

func intp(v int) *int { return &v }

func a(number int, status *int, success bool) *attempt.Attempt {
	return &attempt.Attempt{AttemptNumber: number, StatusCode: status, IsSuccess: success}
}

func TestDeriveState(t *testing.T) {
	tests := []struct {
		name     string
		attempts []*attempt.Attempt
		want     attempt.ChainState
	}{
		{
			name:     "no attempts → pending",
			attempts: nil,
			want:     attempt.StatePending,
		},
		{
			name:     "single success → delivered",
			attempts: []*attempt.Attempt{a(1, intp(200), true)},
			want:     attempt.StateDelivered,
		},
		{
			name: "retry then success → delivered",
			attempts: []*attempt.Attempt{
				a(1, intp(500), false),
				a(2, intp(200), true),
			},
			want: attempt.StateDelivered,
		},
		{
			name:     "permanent 404 → rejected",
			attempts: []*attempt.Attempt{a(1, intp(404), false)},
			want:     attempt.StateRejected,
		},
		{
			name: "retryable failures below cap → pending",
			attempts: []*attempt.Attempt{
				a(1, intp(500), false),
				a(2, nil, false),
			},
			want: attempt.StatePending,
		},
		{
			name: "retryable failures at cap → exhausted",
			attempts: []*attempt.Attempt{
				a(1, intp(503), false),
				a(2, nil, false),
				a(3, intp(429), false),
				a(4, intp(500), false),
				a(5, nil, false),
			},
			want: attempt.StateExhausted,
		},
		{
			name: "order independent",
			attempts: []*attempt.Attempt{
				a(2, intp(200), true),
				a(1, intp(500), false),
			},
			want: attempt.StateDelivered,
		},
		{
			name:     "408 is not permanent",
			attempts: []*attempt.Attempt{a(1, intp(408), false)},
			want:     attempt.StatePending,
		},
		{
			name:     "429 is not permanent",
			attempts: []*attempt.Attempt{a(1, intp(429), false)},
			want:     attempt.StatePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attempt.DeriveState(tt.attempts, 5); got != tt.want {
				t.Fatalf("DeriveState() = %v, want %v", got, tt.want)
			}
		})
	}
}
