// Package api provides the HTTP API for dispatch: subscription management,
// event ingest, and delivery history.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/ratelimit"
	"github.com/hookline/dispatch/store"
)

// Rate budgets per route group, requests per minute per client.
const (
	subscriptionsPerMinute = 10
	ingestPerMinute        = 100
	attemptsPerMinute      = 30
)

// Handler is the root HTTP handler for the dispatch API.
type Handler struct {
	svc     *dispatch.Service
	store   store.Store
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates a new API handler.
func NewHandler(svc *dispatch.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		svc:     svc,
		store:   svc.Store(),
		limiter: ratelimit.New(),
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Subscriptions
	h.mux.HandleFunc("POST /subscriptions", h.createSubscription)
	h.mux.HandleFunc("GET /subscriptions", h.listSubscriptions)
	h.mux.HandleFunc("GET /subscriptions/{id}", h.getSubscription)
	h.mux.HandleFunc("PUT /subscriptions/{id}", h.updateSubscription)
	h.mux.HandleFunc("DELETE /subscriptions/{id}", h.deleteSubscription)
	h.mux.HandleFunc("PATCH /subscriptions/{id}/activate", h.activateSubscription)
	h.mux.HandleFunc("PATCH /subscriptions/{id}/deactivate", h.deactivateSubscription)
	h.mux.HandleFunc("POST /subscriptions/{id}/rotate-secret", h.rotateSecret)

	// Ingest
	h.mux.HandleFunc("POST /ingest/{id}", h.ingest)

	// Webhooks and delivery history
	h.mux.HandleFunc("GET /webhooks/{id}", h.getWebhook)
	h.mux.HandleFunc("GET /subscriptions/{id}/delivery-attempts", h.listSubscriptionAttempts)
	h.mux.HandleFunc("GET /delivery-attempts/{id}", h.getAttempt)

	// Operations
	h.mux.HandleFunc("GET /stats", h.stats)
	h.mux.HandleFunc("GET /health", h.health)
}

// ServeHTTP dispatches requests through panic recovery and request logging.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic in handler",
				"method", r.Method, "path", r.URL.Path,
				"panic", rec, "stack", string(debug.Stack()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}()

	h.mux.ServeHTTP(w, r)

	h.logger.Debug("request",
		"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

// allow applies the per-group rate budget keyed by caller address.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, group string, perMinute int) bool {
	if h.limiter.Allow(group+":"+r.RemoteAddr, ratelimit.PerMinute(perMinute)) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := h.svc.Queue().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
