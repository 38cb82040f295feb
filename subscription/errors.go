package subscription

import "errors"

// ErrNotFound is returned when a subscription cannot be found.
var ErrNotFound = errors.New("dispatch: subscription not found")

// ErrInactive is returned when ingesting for a deactivated subscription.
var ErrInactive = errors.New("dispatch: subscription is inactive")
