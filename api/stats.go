package api

import (
	"net/http"

	"github.com/hookline/dispatch/subscription"
)

// statsOut summarizes service state for operators.
type statsOut struct {
	Subscriptions       int   `json:"subscriptions"`
	ActiveSubscriptions int   `json:"active_subscriptions"`
	Attempts            int64 `json:"delivery_attempts"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subs, err := h.store.ListSubscriptions(ctx, subscription.ListOpts{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	active := 0
	for _, sub := range subs {
		if sub.IsActive {
			active++
		}
	}

	attempts, err := h.store.CountAttempts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsOut{
		Subscriptions:       len(subs),
		ActiveSubscriptions: active,
		Attempts:            attempts,
	})
}
