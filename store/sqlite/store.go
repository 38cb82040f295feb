package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"

	dispatchstore "github.com/hookline/dispatch/store"
)

// compile-time interface check
var _ dispatchstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("dispatch/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	var rows []subscriptionModel
	err := s.sdb.NewRaw(`
		INSERT INTO dispatch_subscriptions (target_url, secret, event_types, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING *
	`, m.TargetURL, m.Secret, m.EventTypes, m.IsActive, m.CreatedAt, m.UpdatedAt).Scan(ctx, &rows)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: create subscription: %w", err)
	}
	if len(rows) > 0 {
		sub.ID = rows[0].ID
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID int64) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(m).
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
	res, err := s.sdb.NewDelete((*subscriptionModel)(nil)).
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
	q := s.sdb.NewSelect(&models)

	if opts.Active != nil {
		q = q.Where("is_active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

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
	t := time.Now().UTC()
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", t).
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
	var rows []webhookModel
	err := s.sdb.NewRaw(`
		INSERT INTO dispatch_webhooks (subscription_id, event_type, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING *
	`, wh.SubscriptionID, wh.EventType, string(wh.Payload), wh.CreatedAt, wh.UpdatedAt).Scan(ctx, &rows)
	if err != nil {
		return fmt.Errorf("dispatch/sqlite: create webhook: %w", err)
	}
	if len(rows) > 0 {
		wh.ID = rows[0].ID
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID int64) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", whID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, webhook.ErrNotFound
		}
		return nil, err
	}
	return fromWebhookModel(m), nil
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.sdb.NewSelect(&models)

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
	q = q.OrderExpr("created_at DESC")

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
	q := s.sdb.NewSelect(&models).Where("subscription_id = ?", subID)

	if opts.EventType != "" {
		q = q.Where("event_type = ?", opts.EventType)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

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
	err := s.sdb.NewRaw(`
		SELECT w.* FROM dispatch_webhooks w
		WHERE w.created_at < ?
		  AND NOT EXISTS (
		      SELECT 1 FROM dispatch_delivery_attempts a WHERE a.webhook_id = w.id
		  )
		ORDER BY w.id ASC
		LIMIT ?
	`, olderThan, limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("dispatch/sqlite: list orphan webhooks: %w", err)
	}

	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		result[i] = fromWebhookModel(&models[i])
	}
	return result, nil
}

// ==================== Attempt Store ====================

func (s *Store) RecordAttempt(ctx context.Context, a *attempt.Attempt) error {
	var rows []attemptModel
	err := s.sdb.NewRaw(`
		INSERT INTO dispatch_delivery_attempts
		    (subscription_id, webhook_id, attempt_number, status_code, response_body, error_message, is_success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING *
	`, a.SubscriptionID, a.WebhookID, a.AttemptNumber, a.StatusCode, a.ResponseBody, a.ErrorMessage, a.IsSuccess, a.CreatedAt).Scan(ctx, &rows)
	if err != nil {
		if isUniqueViolation(err) {
			return attempt.ErrDuplicate
		}
		return fmt.Errorf("dispatch/sqlite: record attempt: %w", err)
	}
	if len(rows) > 0 {
		a.ID = rows[0].ID
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID int64) (*attempt.Attempt, error) {
	m := new(attemptModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", attemptID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, attempt.ErrNotFound
		}
		return nil, err
	}
	return fromAttemptModel(m), nil
}

func (s *Store) ListAttemptsBySubscription(ctx context.Context, subID int64, opts attempt.ListOpts) ([]*attempt.Attempt, error) {
	var models []attemptModel
	q := s.sdb.NewSelect(&models).Where("subscription_id = ?", subID)

	if opts.Success != nil {
		q = q.Where("is_success = ?", *opts.Success)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

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
	if err := s.sdb.NewSelect(&models).
		Where("webhook_id = ?", whID).
		OrderExpr("attempt_number ASC").
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
	var rows []attemptModel
	err := s.sdb.NewRaw(`
		DELETE FROM dispatch_delivery_attempts
		WHERE id IN (
		    SELECT id FROM dispatch_delivery_attempts
		    WHERE created_at < ?
		    ORDER BY id ASC
		    LIMIT ?
		)
		RETURNING id
	`, cutoff, limit).Scan(ctx, &rows)
	if err != nil {
		return 0, fmt.Errorf("dispatch/sqlite: purge attempts: %w", err)
	}
	return int64(len(rows)), nil
}

func (s *Store) CountAttempts(ctx context.Context) (int64, error) {
	count, err := s.sdb.NewSelect((*attemptModel)(nil)).
		Count(ctx)
	return count, err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation checks for a SQLite unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
