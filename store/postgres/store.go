package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"

	dispatchstore "github.com/hookline/dispatch/store"
)

// compile-time interface check
var _ dispatchstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("dispatch/postgres: migration failed: %w", err)
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
	var rows []subscriptionModel
	err := s.pg.NewRaw(`
		INSERT INTO dispatch_subscriptions (target_url, secret, event_types, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, sub.TargetURL, sub.Secret, jsonStrings(sub.EventTypes), sub.IsActive, sub.CreatedAt, sub.UpdatedAt).Scan(ctx, &rows)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: create subscription: %w", err)
	}
	if len(rows) > 0 {
		sub.ID = rows[0].ID
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID int64) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID).
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
	res, err := s.pg.NewUpdate(m).
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
	res, err := s.pg.NewDelete((*subscriptionModel)(nil)).
		Where("id = $1", subID).
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
	q := s.pg.NewSelect(&models)

	if opts.Active != nil {
		q = q.Where("is_active = $1", *opts.Active)
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
	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("is_active = $1", active).
		Set("updated_at = $2", now).
		Where("id = $3", subID).
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
	err := s.pg.NewRaw(`
		INSERT INTO dispatch_webhooks (subscription_id, event_type, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, wh.SubscriptionID, wh.EventType, string(wh.Payload), wh.CreatedAt, wh.UpdatedAt).Scan(ctx, &rows)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: create webhook: %w", err)
	}
	if len(rows) > 0 {
		wh.ID = rows[0].ID
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID int64) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", whID).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.EventType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), opts.EventType)
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at <= $%d", argIdx), *opts.To)
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
	q := s.pg.NewSelect(&models).Where("subscription_id = $1", subID)

	argIdx := 1
	if opts.EventType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), opts.EventType)
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
	err := s.pg.NewRaw(`
		SELECT w.* FROM dispatch_webhooks w
		WHERE w.created_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM dispatch_delivery_attempts a WHERE a.webhook_id = w.id
		  )
		ORDER BY w.id ASC
		LIMIT $2
	`, olderThan, limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list orphan webhooks: %w", err)
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
	err := s.pg.NewRaw(`
		INSERT INTO dispatch_delivery_attempts
		    (subscription_id, webhook_id, attempt_number, status_code, response_body, error_message, is_success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, a.SubscriptionID, a.WebhookID, a.AttemptNumber, a.StatusCode, a.ResponseBody, a.ErrorMessage, a.IsSuccess, a.CreatedAt).Scan(ctx, &rows)
	if err != nil {
		if isUniqueViolation(err) {
			return attempt.ErrDuplicate
		}
		return fmt.Errorf("dispatch/postgres: record attempt: %w", err)
	}
	if len(rows) > 0 {
		a.ID = rows[0].ID
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID int64) (*attempt.Attempt, error) {
	m := new(attemptModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", attemptID).
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
	q := s.pg.NewSelect(&models).Where("subscription_id = $1", subID)

	if opts.Success != nil {
		q = q.Where("is_success = $2", *opts.Success)
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
	if err := s.pg.NewSelect(&models).
		Where("webhook_id = $1", whID).
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
	// Delete by ID in bounded batches: idempotent under concurrent sweeps.
	var rows []attemptModel
	err := s.pg.NewRaw(`
		DELETE FROM dispatch_delivery_attempts
		WHERE id IN (
		    SELECT id FROM dispatch_delivery_attempts
		    WHERE created_at < $1
		    ORDER BY id ASC
		    LIMIT $2
		)
		RETURNING id
	`, cutoff, limit).Scan(ctx, &rows)
	if err != nil {
		return 0, fmt.Errorf("dispatch/postgres: purge attempts: %w", err)
	}
	return int64(len(rows)), nil
}

func (s *Store) CountAttempts(ctx context.Context) (int64, error) {
	count, err := s.pg.NewSelect((*attemptModel)(nil)).
		Count(ctx)
	return count, err
}

// jsonStrings renders a string slice as a JSON array literal for a JSONB column.
func jsonStrings(values []string) string {
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation
// (SQLSTATE 23505), which is how concurrent duplicate attempts collide.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value")
}
