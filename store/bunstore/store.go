// Package bunstore implements store.Store using the Bun ORM, for deployments
// that already carry a bun.DB.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"

	dispatchstore "github.com/hookline/dispatch/store"
)

// compile-time interface check
var _ dispatchstore.Store = (*Store)(nil)

// Store implements store.Store using the Bun ORM.
type Store struct {
	db *bun.DB
}

// New creates a new Bun-backed store.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying Bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables using Bun's CreateTable.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*subscriptionModel)(nil),
		(*webhookModel)(nil),
		(*attemptModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx); err != nil {
			return err
		}
	}

	// Create indexes.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_dispatch_subscriptions_active ON dispatch_subscriptions (is_active)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_webhooks_subscription ON dispatch_webhooks (subscription_id)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_webhooks_event_type ON dispatch_webhooks (event_type)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_webhooks_created ON dispatch_webhooks (created_at)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_subscription ON dispatch_delivery_attempts (subscription_id)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_webhook ON dispatch_delivery_attempts (webhook_id)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_created ON dispatch_delivery_attempts (created_at)",
		"CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_success ON dispatch_delivery_attempts (is_success)",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_dispatch_attempts_chain ON dispatch_delivery_attempts (webhook_id, attempt_number)",
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return err
	}
	sub.ID = m.ID
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID int64) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", subID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID int64) error {
	res, err := s.db.NewDelete().
		Model((*subscriptionModel)(nil)).
		Where("id = ?", subID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.db.NewSelect().Model(&models)

	if opts.Active != nil {
		q = q.Where("is_active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetActive(ctx context.Context, subID int64, active bool) error {
	res, err := s.db.NewUpdate().
		Model((*subscriptionModel)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", subID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return err
	}
	wh.ID = m.ID
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID int64) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", whID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webhook.ErrNotFound
		}
		return nil, err
	}
	return fromWebhookModel(m), nil
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.db.NewSelect().Model(&models)

	if opts.EventType != "" {
		q = q.Where("event_type = ?", opts.EventType)
	}
	if opts.From != nil {
		q = q.Where("created_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("created_at <= ?", *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		result[i] = fromWebhookModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListWebhooksBySubscription(ctx context.Context, subID int64, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.db.NewSelect().Model(&models).Where("subscription_id = ?", subID)

	if opts.EventType != "" {
		q = q.Where("event_type = ?", opts.EventType)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		result[i] = fromWebhookModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListOrphanWebhooks(ctx context.Context, olderThan time.Time, limit int) ([]*webhook.Webhook, error) {
	var models []webhookModel
	err := s.db.NewSelect().
		Model(&models).
		Where("created_at < ?", olderThan).
		Where("NOT EXISTS (SELECT 1 FROM dispatch_delivery_attempts a WHERE a.webhook_id = w.id)").
		Order("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		result[i] = fromWebhookModel(&models[i])
	}
	return result, nil
}

// ==================== Attempt Store ====================

func (s *Store) RecordAttempt(ctx context.Context, a *attempt.Attempt) error {
	m := toAttemptModel(a)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return attempt.ErrDuplicate
		}
		return err
	}
	a.ID = m.ID
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID int64) (*attempt.Attempt, error) {
	m := new(attemptModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", attemptID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, attempt.ErrNotFound
		}
		return nil, err
	}
	return fromAttemptModel(m), nil
}

func (s *Store) ListAttemptsBySubscription(ctx context.Context, subID int64, opts attempt.ListOpts) ([]*attempt.Attempt, error) {
	var models []attemptModel
	q := s.db.NewSelect().Model(&models).Where("subscription_id = ?", subID)

	if opts.Success != nil {
		q = q.Where("is_success = ?", *opts.Success)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*attempt.Attempt, len(models))
	for i := range models {
		result[i] = fromAttemptModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListAttemptsByWebhook(ctx context.Context, whID int64) ([]*attempt.Attempt, error) {
	var models []attemptModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("webhook_id = ?", whID).
		Order("attempt_number ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*attempt.Attempt, len(models))
	for i := range models {
		result[i] = fromAttemptModel(&models[i])
	}
	return result, nil
}

func (s *Store) PurgeAttemptsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*attemptModel)(nil)).
		Where("id IN (SELECT id FROM dispatch_delivery_attempts WHERE created_at < ? ORDER BY id ASC LIMIT ?)", cutoff, limit).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountAttempts(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*attemptModel)(nil)).
		Count(ctx)
	return int64(count), err
}

// isUniqueViolation checks for a unique constraint violation across the SQL
// dialects bun supports.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
