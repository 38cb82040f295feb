package bunstore

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// --- Subscription models ---

type subscriptionModel struct {
	bun.BaseModel `bun:"table:dispatch_subscriptions,alias:s"`

	ID         int64           `bun:"id,pk,autoincrement"`
	TargetURL  string          `bun:"target_url,notnull"`
	Secret     string          `bun:"secret,notnull"`
	EventTypes json.RawMessage `bun:"event_types,type:jsonb,notnull"`
	IsActive   bool            `bun:"is_active,notnull,default:true"`
	CreatedAt  time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	eventTypes, _ := json.Marshal(sub.EventTypes) //nolint:errcheck // best-effort

	return &subscriptionModel{
		ID:         sub.ID,
		TargetURL:  sub.TargetURL,
		Secret:     sub.Secret,
		EventTypes: eventTypes,
		IsActive:   sub.IsActive,
		CreatedAt:  sub.CreatedAt,
		UpdatedAt:  sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Subscription {
	var types []string
	if len(m.EventTypes) > 0 {
		_ = json.Unmarshal(m.EventTypes, &types) //nolint:errcheck // best-effort
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
	bun.BaseModel `bun:"table:dispatch_webhooks,alias:w"`

	ID             int64           `bun:"id,pk,autoincrement"`
	SubscriptionID int64           `bun:"subscription_id,notnull"`
	EventType      string          `bun:"event_type,notnull"`
	Payload        json.RawMessage `bun:"payload,type:jsonb,notnull"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:             wh.ID,
		SubscriptionID: wh.SubscriptionID,
		EventType:      wh.EventType,
		Payload:        wh.Payload,
		CreatedAt:      wh.CreatedAt,
		UpdatedAt:      wh.UpdatedAt,
	}
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
	bun.BaseModel `bun:"table:dispatch_delivery_attempts,alias:a"`

	ID             int64     `bun:"id,pk,autoincrement"`
	SubscriptionID int64     `bun:"subscription_id,notnull"`
	WebhookID      int64     `bun:"webhook_id,notnull"`
	AttemptNumber  int       `bun:"attempt_number,notnull"`
	StatusCode     *int      `bun:"status_code"`
	ResponseBody   *string   `bun:"response_body"`
	ErrorMessage   *string   `bun:"error_message"`
	IsSuccess      bool      `bun:"is_success,notnull,default:false"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toAttemptModel(a *attempt.Attempt) *attemptModel {
	return &attemptModel{
		ID:             a.ID,
		SubscriptionID: a.SubscriptionID,
		WebhookID:      a.WebhookID,
		AttemptNumber:  a.AttemptNumber,
		StatusCode:     a.StatusCode,
		ResponseBody:   a.ResponseBody,
		ErrorMessage:   a.ErrorMessage,
		IsSuccess:      a.IsSuccess,
		CreatedAt:      a.CreatedAt,
	}
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
