package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/hookline/dispatch/ratelimit"
)

func TestUnlimitedAlwaysAllows(t *testing.T) {
	l := ratelimit.New()
	for i := 0; i < 100; i++ {
		if !l.Allow("key", 0) {
			t.Fatal("zero rate must be unlimited")
		}
	}
}

func TestAllowConsumesTokens(t *testing.T) {
	l := ratelimit.New()

	// 5 tokens per second, bucket starts full.
	for i := 0; i < 5; i++ {
		if !l.Allow("key", 5) {
			t.Fatalf("request %d should pass on a full bucket", i+1)
		}
	}
	if l.Allow("key", 5) {
		t.Fatal("bucket should be empty")
	}
}

func TestBucketRefills(t *testing.T) {
	l := ratelimit.New()

	// Drain a 50/s bucket, then wait for at least one token back.
	for l.Allow("key", 50) {
	}
	time.Sleep(50 * time.Millisecond)
	if !l.Allow("key", 50) {
		t.Fatal("bucket did not refill")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := ratelimit.New()

	for l.Allow("a", 5) {
	}
	if !l.Allow("b", 5) {
		t.Fatal("draining one key must not affect another")
	}
}

func TestPerMinuteBudgetAdmitsSingleRequests(t *testing.T) {
	l := ratelimit.New()

	// 10/minute is 1/6 token per second; the floor-at-one burst still lets
	// a single request through immediately.
	if !l.Allow("key", ratelimit.PerMinute(10)) {
		t.Fatal("first request must pass")
	}
	if l.Allow("key", ratelimit.PerMinute(10)) {
		t.Fatal("second immediate request must be limited")
	}
}

func TestWaitRespectsContext(t *testing.T) {
	l := ratelimit.New()
	for l.Allow("key", 1) {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "key", 1); err == nil {
		t.Fatal("Wait must fail when the context expires first")
	}
}

func TestReset(t *testing.T) {
	l := ratelimit.New()
	for l.Allow("key", 5) {
	}
	l.Reset("key")
	if !l.Allow("key", 5) {
		t.Fatal("reset must refill the bucket")
	}
}
