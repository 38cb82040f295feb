package subscription

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/signature"
)

const (
	minSecretLen  = 8
	maxSecretLen  = 64
	maxEventTypes = 10
)

var (
	secretPattern    = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)
)

// Service provides subscription management operations.
type Service struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewService creates a new subscription service. cache may be nil, in which
// case mutations skip invalidation.
func NewService(store Store, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Create registers a new subscription. A missing secret is auto-generated.
func (svc *Service) Create(ctx context.Context, in Input) (*Subscription, error) {
	if err := validateTargetURL(in.TargetURL); err != nil {
		return nil, err
	}
	if err := validateEventTypes(in.EventTypes); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	} else if err := validateSecret(secret); err != nil {
		return nil, err
	}

	sub := &Subscription{
		Entity:     entity.New(),
		TargetURL:  in.TargetURL,
		Secret:     secret,
		EventTypes: in.EventTypes,
		IsActive:   true,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// Get returns a subscription by ID, straight from the store.
func (svc *Service) Get(ctx context.Context, subID int64) (*Subscription, error) {
	return svc.store.GetSubscription(ctx, subID)
}

// Update modifies an existing subscription and invalidates its cache entry.
func (svc *Service) Update(ctx context.Context, subID int64, in Input) (*Subscription, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	if in.TargetURL != "" {
		if err := validateTargetURL(in.TargetURL); err != nil {
			return nil, err
		}
		sub.TargetURL = in.TargetURL
	}
	if in.Secret != "" {
		if err := validateSecret(in.Secret); err != nil {
			return nil, err
		}
		sub.Secret = in.Secret
	}
	if len(in.EventTypes) > 0 {
		if err := validateEventTypes(in.EventTypes); err != nil {
			return nil, err
		}
		sub.EventTypes = in.EventTypes
	}
	if in.IsActive != nil {
		sub.IsActive = *in.IsActive
	}

	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	svc.invalidate(ctx, subID)
	return sub, nil
}

// Delete removes a subscription. The store cascades to its webhooks and
// delivery attempts.
func (svc *Service) Delete(ctx context.Context, subID int64) error {
	if err := svc.store.DeleteSubscription(ctx, subID); err != nil {
		return err
	}
	svc.invalidate(ctx, subID)
	return nil
}

// List returns subscriptions.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, opts)
}

// SetActive activates or deactivates a subscription and invalidates its
// cache entry.
func (svc *Service) SetActive(ctx context.Context, subID int64, active bool) error {
	if err := svc.store.SetActive(ctx, subID, active); err != nil {
		return err
	}
	svc.invalidate(ctx, subID)
	return nil
}

// RotateSecret generates a new signing secret for a subscription.
func (svc *Service) RotateSecret(ctx context.Context, subID int64) (string, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return "", err
	}

	newSecret := signature.GenerateSecret()

	sub.Secret = newSecret
	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}

	svc.invalidate(ctx, subID)
	return newSecret, nil
}

func (svc *Service) invalidate(ctx context.Context, subID int64) {
	if svc.cache == nil {
		return
	}
	if err := svc.cache.Invalidate(ctx, subID); err != nil {
		svc.logger.WarnContext(ctx, "cache invalidation failed", "subscription_id", subID, "error", err)
	}
}

func validateTargetURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "target_url", Message: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "target_url", Message: "must be an absolute http(s) URL"}
	}
	return nil
}

func validateSecret(secret string) error {
	if len(secret) < minSecretLen || len(secret) > maxSecretLen {
		return &ValidationError{Field: "secret", Message: "must be 8 to 64 characters"}
	}
	if !secretPattern.MatchString(secret) {
		return &ValidationError{Field: "secret", Message: "must contain only alphanumerics, underscores, and hyphens"}
	}
	return nil
}

func validateEventTypes(eventTypes []string) error {
	if len(eventTypes) == 0 {
		return &ValidationError{Field: "event_types", Message: "at least one event type required"}
	}
	if len(eventTypes) > maxEventTypes {
		return &ValidationError{Field: "event_types", Message: "at most 10 event types allowed"}
	}
	for _, et := range eventTypes {
		if et == "" || !eventTypePattern.MatchString(et) {
			return &ValidationError{Field: "event_types", Message: "event types must contain only alphanumerics, underscores, hyphens, and dots"}
		}
	}
	return nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscription validation: " + e.Field + ": " + e.Message
}
