package mongo

import (
	"encoding/json"
	"time"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/internal/entity"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"
)

// --- Subscription models ---

type subscriptionModel struct {
	ID         int64     `bson:"_id"`
	TargetURL  string    `bson:"target_url"`
	Secret     string    `bson:"secret"`
	EventTypes []string  `bson:"event_types"`
	IsActive   bool      `bson:"is_active"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:         sub.ID,
		TargetURL:  sub.TargetURL,
		Secret:     sub.Secret,
		EventTypes: sub.EventTypes,
		IsActive:   sub.IsActive,
		CreatedAt:  sub.CreatedAt,
		UpdatedAt:  sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Subscription {
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         m.ID,
		TargetURL:  m.TargetURL,
		Secret:     m.Secret,
		EventTypes: m.EventTypes,
		IsActive:   m.IsActive,
	}
}

// --- Webhook models ---

type webhookModel struct {
	ID             int64     `bson:"_id"`
	SubscriptionID int64     `bson:"subscription_id"`
	EventType      string    `bson:"event_type"`
	Payload        string    `bson:"payload"` // JSON
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:             wh.ID,
		SubscriptionID: wh.SubscriptionID,
		EventType:      wh.EventType,
		Payload:        string(wh.Payload),
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
		Payload:        json.RawMessage(m.Payload),
	}
}

// --- Attempt models ---

type attemptModel struct {
	ID             int64     `bson:"_id"`
	SubscriptionID int64     `bson:"subscription_id"`
	WebhookID      int64     `bson:"webhook_id"`
	AttemptNumber  int       `bson:"attempt_number"`
	StatusCode     *int      `bson:"status_code,omitempty"`
	ResponseBody   *string   `bson:"response_body,omitempty"`
	ErrorMessage   *string   `bson:"error_message,omitempty"`
	IsSuccess      bool      `bson:"is_success"`
	CreatedAt      time.Time `bson:"created_at"`
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
