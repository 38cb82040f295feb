package attempt

import "errors"

// ErrNotFound is returned when a delivery attempt cannot be found.
var ErrNotFound = errors.New("dispatch: delivery attempt not found")

// ErrDuplicate is returned when recording an attempt that collides on
// (webhook_id, attempt_number). The loser of an at-least-once redelivery
// race receives this and must treat the task as terminal.
var ErrDuplicate = errors.New("dispatch: duplicate delivery attempt")
