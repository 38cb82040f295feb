// Package memory provides an in-memory Queue implementation for unit testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hookline/dispatch/id"
	"github.com/hookline/dispatch/queue"
)

// compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

var errClosed = errors.New("memory queue: closed")

type entry struct {
	task      *queue.Task
	visibleAt time.Time

	// claim state
	token    string
	deadline time.Time
}

// Queue is an in-memory implementation of queue.Queue for testing. It honors
// enqueue delays and redelivers unacked leases after the visibility timeout.
type Queue struct {
	mu                sync.Mutex
	lanes             map[queue.Lane][]*entry
	visibilityTimeout time.Duration
	closed            bool
}

// New creates a new in-memory queue with the given visibility timeout.
func New(visibilityTimeout time.Duration) *Queue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &Queue{
		lanes:             make(map[queue.Lane][]*entry),
		visibilityTimeout: visibilityTimeout,
	}
}

// Enqueue makes the task visible on the lane after delay.
func (q *Queue) Enqueue(_ context.Context, lane queue.Lane, t *queue.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.lanes[lane] = append(q.lanes[lane], &entry{
		task:      t,
		visibleAt: time.Now().UTC().Add(delay),
	})
	return nil
}

// Dequeue claims up to limit visible tasks, oldest visibility first.
func (q *Queue) Dequeue(_ context.Context, lane queue.Lane, limit int) ([]*queue.Lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	entries := q.lanes[lane]

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].visibleAt.Before(entries[j].visibleAt)
	})

	var leases []*queue.Lease
	for _, e := range entries {
		if len(leases) >= limit {
			break
		}
		// Expired claims become claimable again: at-least-once redelivery.
		claimed := e.token != "" && now.Before(e.deadline)
		if claimed || e.visibleAt.After(now) {
			continue
		}

		e.token = id.NewLeaseID().String()
		e.deadline = now.Add(q.visibilityTimeout)
		leases = append(leases, &queue.Lease{Task: e.task, Token: e.token})
	}

	return leases, nil
}

// Ack permanently removes a claimed task.
func (q *Queue) Ack(_ context.Context, lease *queue.Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.lanes[laneOf(q, lease)]
	for i, e := range entries {
		if e.token == lease.Token {
			q.lanes[laneOf(q, lease)] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Nack returns a claimed task to its lane, immediately visible.
func (q *Queue) Nack(_ context.Context, lease *queue.Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entries := range q.lanes {
		for _, e := range entries {
			if e.token == lease.Token {
				e.token = ""
				e.deadline = time.Time{}
				e.visibleAt = time.Now().UTC()
				return nil
			}
		}
	}
	return nil
}

// Ping reports whether the queue is open.
func (q *Queue) Ping(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errClosed
	}
	return nil
}

// Close marks the queue as closed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len returns the number of tasks currently held on a lane, claimed or not.
func (q *Queue) Len(lane queue.Lane) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[lane])
}

// laneOf finds the lane containing the leased token. Acks carry no lane, so
// the memory queue scans; lane counts are tiny in tests.
func laneOf(q *Queue, lease *queue.Lease) queue.Lane {
	for lane, entries := range q.lanes {
		for _, e := range entries {
			if e.token == lease.Token {
				return lane
			}
		}
	}
	return ""
}
