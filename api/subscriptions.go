package api

import (
	"errors"
	"net/http"

	"github.com/hookline/dispatch/subscription"
)

// subscriptionOut is the public shape of a subscription; the secret never
// leaves the service except at create/rotate time.
type subscriptionOut struct {
	ID         int64    `json:"id"`
	TargetURL  string   `json:"target_url"`
	EventTypes []string `json:"event_types"`
	IsActive   bool     `json:"is_active"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// createSubscriptionOut additionally carries the secret so the caller can
// store it; apart from the rotate-secret response, this is the only time a
// generated secret is revealed.
type createSubscriptionOut struct {
	subscriptionOut
	Secret string `json:"secret"`
}

func toSubscriptionOut(sub *subscription.Subscription) subscriptionOut {
	return subscriptionOut{
		ID:         sub.ID,
		TargetURL:  sub.TargetURL,
		EventTypes: sub.EventTypes,
		IsActive:   sub.IsActive,
		CreatedAt:  sub.CreatedAt.Format(timeFormat),
		UpdatedAt:  sub.UpdatedAt.Format(timeFormat),
	}
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "subscriptions", subscriptionsPerMinute) {
		return
	}

	var in subscription.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.svc.Subscriptions().Create(r.Context(), in)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSubscriptionOut{
		subscriptionOut: toSubscriptionOut(sub),
		Secret:          sub.Secret,
	})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "subscriptions", subscriptionsPerMinute) {
		return
	}

	opts := subscription.ListOpts{
		Offset: queryInt(r, "skip", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active := raw == "true"
		opts.Active = &active
	}

	subs, err := h.svc.Subscriptions().List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]subscriptionOut, len(subs))
	for i, sub := range subs {
		out[i] = toSubscriptionOut(sub)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	sub, err := h.svc.Subscriptions().Get(r.Context(), subID)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionOut(sub))
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	var in subscription.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.svc.Subscriptions().Update(r.Context(), subID, in)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionOut(sub))
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	if err := h.svc.Subscriptions().Delete(r.Context(), subID); err != nil {
		writeSubscriptionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) activateSubscription(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) deactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	subID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	if err := h.svc.Subscriptions().SetActive(r.Context(), subID, active); err != nil {
		writeSubscriptionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	secret, err := h.svc.Subscriptions().RotateSecret(r.Context(), subID)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func writeSubscriptionError(w http.ResponseWriter, err error) {
	var verr *subscription.ValidationError
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		writeError(w, http.StatusNotFound, "subscription not found")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
