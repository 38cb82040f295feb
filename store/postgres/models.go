package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:dispatch_subscriptions"`

	ID         int64     `grove:"id,pk"`
	TargetURL  string    `grove:"target_url"`
	Secret     string    `grove:"secret"`
	EventTypes string    `grove:"event_types,type:jsonb"` // JSON array
	IsActive   bool      `grove:"is_active"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	eventTypes, _ := json.Marshal(sub.EventTypes) //nolint:errcheck // best-effort

	return &subscriptionModel{
		ID:         sub.ID,
		TargetURL:  sub.TargetURL,
		Secret:     sub.Secret,
		EventTypes: string(eventTypes),
		IsActive:   sub.IsActive,
		CreatedAt:  sub.CreatedAt,
		UpdatedAt:  sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Subscription {
	var types []string
	if m.EventTypes != "" {
		_ = json.Unmarshal([]byte(m.EventTypes), &types) //nolint:errcheck // best-effort
	}

	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         m.ID,
		TargetURL:  m.TargetURL,
		Secret:     m.Secret,
		EventTypes: types,
		IsActive:   m.IsActive,
	}
}

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:dispatch_webhooks"`

	ID             int64           `grove:"id,pk"`
	SubscriptionID int64           `grove:"subscription_id"`
	EventType      string          `grove:"event_type"`
	Payload        json.RawMessage `grove:"payload,type:jsonb"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func fromWebhookModel(m *webhookModel) *webhook.Webhook {
	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		EventType:      m.EventType,
		Payload:        m.Payload,
	}
}

// --- Attempt models ---

type attemptModel struct {
	grove.BaseModel `grove:"table:dispatch_delivery_attempts"`

	ID             int64     `grove:"id,pk"`
	SubscriptionID int64     `grove:"subscription_id"`
	WebhookID      int64     `grove:"webhook_id"`
	AttemptNumber  int       `grove:"attempt_number"`
	StatusCode     *int      `grove:"status_code"`
	ResponseBody   *string   `grove:"response_body"`
	ErrorMessage   *string   `grove:"error_message"`
	IsSuccess      bool      `grove:"is_success"`
	CreatedAt      time.Time `grove:"created_at"`
}

func fromAttemptModel(m *attemptModel) *attempt.Attempt {
	return &attempt.Attempt{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		WebhookID:      m.WebhookID,
		AttemptNumber:  m.AttemptNumber,
		StatusCode:     m.StatusCode,
		ResponseBody:   m.ResponseBody,
		ErrorMessage:   m.ErrorMessage,
		IsSuccess:      m.IsSuccess,
		CreatedAt:      m.CreatedAt,
	}
}
