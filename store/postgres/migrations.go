package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the dispatch store.
var Migrations = migrate.NewGroup("dispatch")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_dispatch_subscriptions",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_subscriptions (
    id          BIGSERIAL PRIMARY KEY,
    target_url  TEXT NOT NULL,
    secret      TEXT NOT NULL,
    event_types JSONB NOT NULL,
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dispatch_subscriptions_active ON dispatch_subscriptions (is_active);
CREATE INDEX IF NOT EXISTS idx_dispatch_subscriptions_event_types ON dispatch_subscriptions USING GIN (event_types);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_webhooks",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_webhooks (
    id              BIGSERIAL PRIMARY KEY,
    subscription_id BIGINT NOT NULL REFERENCES dispatch_subscriptions (id) ON DELETE CASCADE,
    event_type      TEXT NOT NULL,
    payload         JSONB NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_dispatch_webhooks_subscription ON dispatch_webhooks (subscription_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_webhooks_event_type ON dispatch_webhooks (event_type);
CREATE INDEX IF NOT EXISTS idx_dispatch_webhooks_created ON dispatch_webhooks (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_webhooks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_dispatch_delivery_attempts",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS dispatch_delivery_attempts (
    id              BIGSERIAL PRIMARY KEY,
    subscription_id BIGINT NOT NULL REFERENCES dispatch_subscriptions (id) ON DELETE CASCADE,
    webhook_id      BIGINT NOT NULL REFERENCES dispatch_webhooks (id) ON DELETE CASCADE,
    attempt_number  INT NOT NULL,
    status_code     INT,
    response_body   TEXT,
    error_message   TEXT,
    is_success      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_dispatch_attempts_chain UNIQUE (webhook_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_subscription ON dispatch_delivery_attempts (subscription_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_webhook ON dispatch_delivery_attempts (webhook_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_created ON dispatch_delivery_attempts (created_at);
CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_success ON dispatch_delivery_attempts (is_success);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS dispatch_delivery_attempts`)
				return err
			},
		},
	)
}
