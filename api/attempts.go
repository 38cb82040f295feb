package api

import (
	"errors"
	"net/http"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
)

const timeFormat = "2006-01-02T15:04:05.999999Z07:00"

// attemptOut is the public shape of a delivery attempt.
type attemptOut struct {
	ID             int64   `json:"id"`
	SubscriptionID int64   `json:"subscription_id"`
	WebhookID      int64   `json:"webhook_id"`
	AttemptNumber  int     `json:"attempt_number"`
	StatusCode     *int    `json:"status_code"`
	ResponseBody   *string `json:"response_body"`
	ErrorMessage   *string `json:"error_message"`
	IsSuccess      bool    `json:"is_success"`
	CreatedAt      string  `json:"created_at"`
}

func toAttemptOut(a *attempt.Attempt) attemptOut {
	return attemptOut{
		ID:             a.ID,
		SubscriptionID: a.SubscriptionID,
		WebhookID:      a.WebhookID,
		AttemptNumber:  a.AttemptNumber,
		StatusCode:     a.StatusCode,
		ResponseBody:   a.ResponseBody,
		ErrorMessage:   a.ErrorMessage,
		IsSuccess:      a.IsSuccess,
		CreatedAt:      a.CreatedAt.Format(timeFormat),
	}
}

func (h *Handler) listSubscriptionAttempts(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "attempts", attemptsPerMinute) {
		return
	}

	subID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	// The subscription must exist for its history to be queryable.
	if _, err := h.store.GetSubscription(r.Context(), subID); err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := attempt.ListOpts{
		Offset: queryInt(r, "skip", 0),
		Limit:  queryInt(r, "limit", 10),
	}
	if raw := r.URL.Query().Get("success"); raw != "" {
		success := raw == "true"
		opts.Success = &success
	}

	attempts, err := h.store.ListAttemptsBySubscription(r.Context(), subID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]attemptOut, len(attempts))
	for i, a := range attempts {
		out[i] = toAttemptOut(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "attempts", attemptsPerMinute) {
		return
	}

	attemptID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid attempt ID")
		return
	}

	a, err := h.store.GetAttempt(r.Context(), attemptID)
	if err != nil {
		if errors.Is(err, attempt.ErrNotFound) {
			writeError(w, http.StatusNotFound, "delivery attempt not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toAttemptOut(a))
}
