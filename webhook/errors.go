package webhook

import "errors"

// ErrNotFound is returned when a webhook cannot be found.
var ErrNotFound = errors.New("dispatch: webhook not found")
