package api

import (
	"encoding/json"
	"errors"
	"net/http"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/subscription"
)

// ingestRequest binds the body for POST /ingest/{subscription_id}.
type ingestRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// ingestResponse is the acknowledgement returned on accepted ingest.
type ingestResponse struct {
	WebhookID int64  `json:"webhook_id"`
	Status    string `json:"status"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "ingest", ingestPerMinute) {
		return
	}

	subID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	wh, err := h.svc.Ingest(r.Context(), subID, req.EventType, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrNotFound):
			writeError(w, http.StatusNotFound, "subscription not found")
		case errors.Is(err, dispatch.ErrSubscriptionInactive):
			writeError(w, http.StatusConflict, "subscription is inactive")
		case errors.Is(err, dispatch.ErrUnknownEventType):
			writeError(w, http.StatusConflict, "event type not subscribed")
		case errors.Is(err, dispatch.ErrMalformedPayload):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, "storage or queue unavailable")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{
		WebhookID: wh.ID,
		Status:    "accepted",
	})
}
