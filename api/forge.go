package api

import (
	"net/http"

	"github.com/xraph/forge"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/store"
	"github.com/hookline/dispatch/subscription"
)

// ForgeAPI wires the dispatch HTTP surface into a Forge router with full
// OpenAPI metadata. It exposes Handler's subscription CRUD, ingest and
// delivery-attempt operations; the activate/deactivate, rotate-secret,
// webhook, stats and health routes of Handler are not registered.
type ForgeAPI struct {
	svc   *dispatch.Service
	store store.Store
	log   forge.Logger
}

// NewForgeAPI creates a ForgeAPI from a dispatch Service.
func NewForgeAPI(svc *dispatch.Service, log forge.Logger) *ForgeAPI {
	return &ForgeAPI{
		svc:   svc,
		store: svc.Store(),
		log:   log,
	}
}

// RegisterRoutes registers the subscription, ingest and delivery-attempt
// routes into the given Forge router with full OpenAPI metadata.
func (a *ForgeAPI) RegisterRoutes(router forge.Router) {
	a.registerSubscriptionRoutes(router)
	a.registerIngestRoutes(router)
	a.registerAttemptRoutes(router)
}

// ---------------------------------------------------------------------------
// Subscription routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerSubscriptionRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("subscriptions"))

	if err := g.POST("/subscriptions", a.createSubscription,
		forge.WithSummary("Create subscription"),
		forge.WithDescription("Registers a webhook receiver: target URL, signing secret, event types."),
		forge.WithOperationID("createSubscription"),
		forge.WithRequestSchema(CreateSubscriptionForgeRequest{}),
		forge.WithCreatedResponse(subscription.Subscription{}),
		forge.WithErrorResponses(),
	); err != nil {
		// Log the error and continue registering other routes instead of failing completely.
		a.log.Error("Failed to register createSubscription route", forge.Error(err))
	}

	if err := g.GET("/subscriptions", a.listSubscriptions,
		forge.WithSummary("List subscriptions"),
		forge.WithDescription("Returns a paginated list of subscriptions."),
		forge.WithOperationID("listSubscriptions"),
		forge.WithRequestSchema(ListSubscriptionsForgeRequest{}),
		forge.WithListResponse(subscription.Subscription{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listSubscriptions route", forge.Error(err))
	}

	if err := g.GET("/subscriptions/:subscriptionId", a.getSubscription,
		forge.WithSummary("Get subscription"),
		forge.WithDescription("Returns details of a specific subscription."),
		forge.WithOperationID("getSubscription"),
		forge.WithResponseSchema(http.StatusOK, "Subscription details", subscription.Subscription{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getSubscription route", forge.Error(err))
	}

	if err := g.PUT("/subscriptions/:subscriptionId", a.updateSubscription,
		forge.WithSummary("Update subscription"),
		forge.WithDescription("Modifies target URL, secret, event types, or active state."),
		forge.WithOperationID("updateSubscription"),
		forge.WithRequestSchema(UpdateSubscriptionForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated subscription", subscription.Subscription{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register updateSubscription route", forge.Error(err))
	}

	if err := g.DELETE("/subscriptions/:subscriptionId", a.deleteSubscription,
		forge.WithSummary("Delete subscription"),
		forge.WithDescription("Removes a subscription. Its webhooks and delivery attempts are removed with it."),
		forge.WithOperationID("deleteSubscription"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register deleteSubscription route", forge.Error(err))
	}
}

func (a *ForgeAPI) createSubscription(ctx forge.Context, req *CreateSubscriptionForgeRequest) (*subscription.Subscription, error) {
	if req.TargetURL == "" {
		return nil, forge.BadRequest("target_url is required")
	}

	sub, err := a.svc.Subscriptions().Create(ctx.Context(), subscription.Input{
		TargetURL:  req.TargetURL,
		Secret:     req.Secret,
		EventTypes: req.EventTypes,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return sub, nil
}

func (a *ForgeAPI) listSubscriptions(ctx forge.Context, req *ListSubscriptionsForgeRequest) ([]*subscription.Subscription, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	opts := subscription.ListOpts{
		Offset: req.Offset,
		Limit:  limit,
	}
	subs, err := a.svc.Subscriptions().List(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(err)
	}
	return subs, nil
}

func (a *ForgeAPI) getSubscription(ctx forge.Context, req *GetSubscriptionForgeRequest) (*subscription.Subscription, error) {
	sub, err := a.svc.Subscriptions().Get(ctx.Context(), req.SubscriptionID)
	if err != nil {
		return nil, mapError(err)
	}
	return sub, nil
}

func (a *ForgeAPI) updateSubscription(ctx forge.Context, req *UpdateSubscriptionForgeRequest) (*subscription.Subscription, error) {
	sub, err := a.svc.Subscriptions().Update(ctx.Context(), req.SubscriptionID, subscription.Input{
		TargetURL:  req.TargetURL,
		Secret:     req.Secret,
		EventTypes: req.EventTypes,
		IsActive:   req.IsActive,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return sub, nil
}

func (a *ForgeAPI) deleteSubscription(ctx forge.Context, req *GetSubscriptionForgeRequest) (*subscription.Subscription, error) {
	if err := a.svc.Subscriptions().Delete(ctx.Context(), req.SubscriptionID); err != nil {
		return nil, mapError(err)
	}

	err := ctx.NoContent(http.StatusNoContent)
	if err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.NoContent.
	return nil, nil
}

// ---------------------------------------------------------------------------
// Ingest routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerIngestRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("ingest"))

	if err := g.POST("/ingest/:subscriptionId", a.ingest,
		forge.WithSummary("Ingest event"),
		forge.WithDescription("Accepts an event payload for a subscription and queues it for delivery."),
		forge.WithOperationID("ingestEvent"),
		forge.WithRequestSchema(IngestForgeRequest{}),
		forge.WithResponseSchema(http.StatusAccepted, "Webhook accepted", IngestForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register ingestEvent route", forge.Error(err))
	}
}

func (a *ForgeAPI) ingest(ctx forge.Context, req *IngestForgeRequest) (*IngestForgeResponse, error) {
	if req.EventType == "" {
		return nil, forge.BadRequest("event_type is required")
	}
	if len(req.Payload) == 0 {
		return nil, forge.BadRequest("payload is required")
	}

	wh, err := a.svc.Ingest(ctx.Context(), req.SubscriptionID, req.EventType, req.Payload)
	if err != nil {
		return nil, mapError(err)
	}

	return &IngestForgeResponse{
		WebhookID: wh.ID,
		Status:    "accepted",
	}, nil
}

// ---------------------------------------------------------------------------
// Delivery attempt routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerAttemptRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("delivery-attempts"))

	if err := g.GET("/subscriptions/:subscriptionId/delivery-attempts", a.listAttempts,
		forge.WithSummary("List delivery attempts"),
		forge.WithDescription("Returns the delivery attempt history for a subscription, newest first."),
		forge.WithOperationID("listDeliveryAttempts"),
		forge.WithRequestSchema(ListAttemptsForgeRequest{}),
		forge.WithListResponse(attempt.Attempt{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listDeliveryAttempts route", forge.Error(err))
	}

	if err := g.GET("/delivery-attempts/:attemptId", a.getAttempt,
		forge.WithSummary("Get delivery attempt"),
		forge.WithDescription("Returns a single delivery attempt."),
		forge.WithOperationID("getDeliveryAttempt"),
		forge.WithResponseSchema(http.StatusOK, "Delivery attempt", attempt.Attempt{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getDeliveryAttempt route", forge.Error(err))
	}
}

func (a *ForgeAPI) listAttempts(ctx forge.Context, req *ListAttemptsForgeRequest) ([]*attempt.Attempt, error) {
	if _, err := a.store.GetSubscription(ctx.Context(), req.SubscriptionID); err != nil {
		return nil, mapError(err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	attempts, err := a.store.ListAttemptsBySubscription(ctx.Context(), req.SubscriptionID, attempt.ListOpts{
		Offset: req.Offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return attempts, nil
}

func (a *ForgeAPI) getAttempt(ctx forge.Context, req *GetAttemptForgeRequest) (*attempt.Attempt, error) {
	att, err := a.store.GetAttempt(ctx.Context(), req.AttemptID)
	if err != nil {
		return nil, mapError(err)
	}
	return att, nil
}
