// Package queue defines the durable task queue contract used by the
// delivery worker and the retention sweeper.
//
// The queue has two logical lanes: "deliver" carries webhook delivery tasks
// and supports delayed visibility for retry backoff; "cleanup" carries the
// hourly retention sweeps. Delivery is at-least-once: a lease that is never
// acked reappears after the visibility timeout, so consumers must tolerate
// redelivery of the same task.
package queue

import (
	"context"
	"time"
)

// Lane names the two logical task lanes.
type Lane string

const (
	// LaneDeliver carries webhook delivery tasks.
	LaneDeliver Lane = "deliver"

	// LaneCleanup carries retention sweep tasks.
	LaneCleanup Lane = "cleanup"
)

// Queue is the durable work queue contract.
type Queue interface {
	// Enqueue makes the task visible on the lane after the given delay.
	// The task must be durable before Enqueue returns.
	Enqueue(ctx context.Context, lane Lane, t *Task, delay time.Duration) error

	// Dequeue claims up to limit visible tasks from the lane. Claimed tasks
	// become invisible until acked, nacked, or their visibility timeout
	// expires. Returns an empty slice when nothing is ready.
	Dequeue(ctx context.Context, lane Lane, limit int) ([]*Lease, error)

	// Ack permanently removes a claimed task.
	Ack(ctx context.Context, lease *Lease) error

	// Nack returns a claimed task to the lane, immediately visible.
	Nack(ctx context.Context, lease *Lease) error

	// Ping checks queue connectivity.
	Ping(ctx context.Context) error

	// Close releases the queue's resources.
	Close() error
}
