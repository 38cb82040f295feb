package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hookline/dispatch/id"
)

// Kind discriminates the task payloads carried on the queue. Dispatching by
// a closed enum keeps the consumer a plain switch instead of a handler
// registry.
type Kind string

const (
	// KindDeliver is one delivery attempt for one webhook.
	KindDeliver Kind = "deliver"

	// KindCleanup is one retention sweep.
	KindCleanup Kind = "cleanup"
)

// Task is the unit of queued work.
type Task struct {
	// ID uniquely identifies this task instance.
	ID id.ID `json:"id"`

	// Kind selects the consumer-side handler.
	Kind Kind `json:"kind"`

	// WebhookID is the webhook to deliver. Zero for cleanup tasks.
	WebhookID int64 `json:"webhook_id,omitempty"`

	// AttemptNumber is the 1-based attempt this task will execute.
	// Zero for cleanup tasks.
	AttemptNumber int `json:"attempt_number,omitempty"`

	// EnqueuedAt is when the task was first enqueued.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewDeliverTask builds a delivery task for the given webhook and attempt.
func NewDeliverTask(webhookID int64, attemptNumber int) *Task {
	return &Task{
		ID:            id.NewTaskID(),
		Kind:          KindDeliver,
		WebhookID:     webhookID,
		AttemptNumber: attemptNumber,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// NewCleanupTask builds a retention sweep task.
func NewCleanupTask() *Task {
	return &Task{
		ID:         id.NewTaskID(),
		Kind:       KindCleanup,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Encode serializes the task for queue transport.
func (t *Task) Encode() ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("queue: encode task: %w", err)
	}
	return raw, nil
}

// DecodeTask deserializes a task from queue transport.
func DecodeTask(raw []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("queue: decode task: %w", err)
	}
	return &t, nil
}

// Lease is a claimed task plus the token that acknowledges it. A lease not
// acked before the queue's visibility timeout is handed out again.
type Lease struct {
	// Task is the claimed task.
	Task *Task

	// Token is the opaque acknowledgement handle for this claim.
	Token string
}
