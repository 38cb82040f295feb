package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/webhook"
)

// webhookOut is the public shape of a webhook plus its delivery lifecycle
// state, derived from the recorded attempt chain.
type webhookOut struct {
	ID             int64              `json:"id"`
	SubscriptionID int64              `json:"subscription_id"`
	EventType      string             `json:"event_type"`
	Payload        json.RawMessage    `json:"payload"`
	CreatedAt      string             `json:"created_at"`
	Status         attempt.ChainState `json:"status"`
	Attempts       []attemptOut       `json:"attempts"`
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	whID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	wh, err := h.store.GetWebhook(r.Context(), whID)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			writeError(w, http.StatusNotFound, "webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	attempts, err := h.store.ListAttemptsByWebhook(r.Context(), whID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := webhookOut{
		ID:             wh.ID,
		SubscriptionID: wh.SubscriptionID,
		EventType:      wh.EventType,
		Payload:        wh.Payload,
		CreatedAt:      wh.CreatedAt.Format(timeFormat),
		Status:         attempt.DeriveState(attempts, h.svc.Config().MaxAttempts),
		Attempts:       make([]attemptOut, len(attempts)),
	}
	for i, a := range attempts {
		out.Attempts[i] = toAttemptOut(a)
	}
	writeJSON(w, http.StatusOK, out)
}
