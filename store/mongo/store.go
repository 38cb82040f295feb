// Package mongo implements store.Store using MongoDB via Grove ORM.
//
// MongoDB has neither serial columns nor foreign keys, so the store fills
// both gaps itself: serial IDs come from a counters collection incremented
// atomically, and subscription deletes cascade to webhooks and attempts with
// explicit multi-collection deletes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/hookline/dispatch/attempt"
	"github.com/hookline/dispatch/subscription"
	"github.com/hookline/dispatch/webhook"

	dispatchstore "github.com/hookline/dispatch/store"
)

// Collection name constants.
const (
	colSubscriptions = "dispatch_subscriptions"
	colWebhooks      = "dispatch_webhooks"
	colAttempts      = "dispatch_delivery_attempts"
	colCounters      = "dispatch_counters"
)

// Compile-time interface check.
var _ dispatchstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all dispatch collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}

		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("dispatch/mongo: migrate %s indexes: %w", col, err)
		}
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// migrationIndexes returns the index definitions for all dispatch collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "is_active", Value: 1}}},
			{Keys: bson.D{{Key: "event_types", Value: 1}}},
		},
		colWebhooks: {
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "event_type", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colAttempts: {
			{
				Keys:    bson.D{{Key: "webhook_id", Value: 1}, {Key: "attempt_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "is_success", Value: 1}}},
		},
	}
}

// nextID atomically increments and returns the serial counter for an entity.
func (s *Store) nextID(ctx context.Context, entity string) (int64, error) {
	filter := bson.M{"_id": entity}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return 0, fmt.Errorf("dispatch/mongo: next %s id: %w", entity, err)
	}
	return doc.Seq, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	id, err := s.nextID(ctx, "subscription")
	if err != nil {
		return err
	}
	sub.ID = id

	m := toSubscriptionModel(sub)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID int64) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID}).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID int64) error {
	res, err := s.mdb.Collection(colSubscriptions).DeleteOne(ctx, bson.M{"_id": subID})
	if err != nil {
		return fmt.Errorf("dispatch/mongo: delete subscription: %w", err)
	}
	if res.DeletedCount == 0 {
		return subscription.ErrNotFound
	}

	// Manual cascade: Mongo has no foreign keys.
	if _, err := s.mdb.Collection(colWebhooks).DeleteMany(ctx, bson.M{"subscription_id": subID}); err != nil {
		return fmt.Errorf("dispatch/mongo: cascade webhooks: %w", err)
	}
	if _, err := s.mdb.Collection(colAttempts).DeleteMany(ctx, bson.M{"subscription_id": subID}); err != nil {
		return fmt.Errorf("dispatch/mongo: cascade attempts: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	filter := bson.M{}
	if opts.Active != nil {
		filter["is_active"] = *opts.Active
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.mdb.Collection(colSubscriptions).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var models []subscriptionModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: decode subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

func (s *Store) SetActive(ctx context.Context, subID int64, active bool) error {
	update := bson.M{"$set": bson.M{"is_active": active, "updated_at": now()}}
	res, err := s.mdb.Collection(colSubscriptions).UpdateOne(ctx, bson.M{"_id": subID}, update)
	if err != nil {
		return fmt.Errorf("dispatch/mongo: set active: %w", err)
	}
	if res.MatchedCount == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	id, err := s.nextID(ctx, "webhook")
	if err != nil {
		return err
	}
	wh.ID = id

	m := toWebhookModel(wh)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/mongo: create webhook: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID int64) (*webhook.Webhook, error) {
	var m webhookModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": whID}).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, webhook.ErrNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get webhook: %w", err)
	}
	return fromWebhookModel(&m), nil
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	filter := bson.M{}
	if opts.EventType != "" {
		filter["event_type"] = opts.EventType
	}
	if opts.From != nil || opts.To != nil {
		created := bson.M{}
		if opts.From != nil {
			created["$gte"] = *opts.From
		}
		if opts.To != nil {
			created["$lte"] = *opts.To
		}
		filter["created_at"] = created
	}

	return s.findWebhooks(ctx, filter, opts)
}

func (s *Store) ListWebhooksBySubscription(ctx context.Context, subID int64, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	filter := bson.M{"subscription_id": subID}
	if opts.EventType != "" {
		filter["event_type"] = opts.EventType
	}
	return s.findWebhooks(ctx, filter, opts)
}

func (s *Store) findWebhooks(ctx context.Context, filter bson.M, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.mdb.Collection(colWebhooks).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list webhooks: %w", err)
	}
	defer cursor.Close(ctx)

	var models []webhookModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: decode webhooks: %w", err)
	}

	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		result[i] = fromWebhookModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListOrphanWebhooks(ctx context.Context, olderThan time.Time, limit int) ([]*webhook.Webhook, error) {
	// Attempted webhook IDs first, then an exclusion query. Two round trips,
	// but orphan reconciliation is rare and off the hot path.
	attemptedIDs := s.mdb.Collection(colAttempts).Distinct(ctx, "webhook_id", bson.M{})
	if err := attemptedIDs.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: distinct attempted webhooks: %w", err)
	}

	var attempted []int64
	if err := attemptedIDs.Decode(&attempted); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: decode attempted webhooks: %w", err)
	}

	filter := bson.M{
		"created_at": bson.M{"$lt": olderThan},
		"_id":        bson.M{"$nin": attempted},
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}

	cursor, err := s.mdb.Collection(colWebhooks).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list orphan webhooks: %w", err)
	}
	defer cursor.Close(ctx)

	var models []webhookModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: decode orphan webhooks: %w", err)
	}

	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		result[i] = fromWebhookModel(&models[i])
	}
	return result, nil
}

// ==================== Attempt Store ====================

func (s *Store) RecordAttempt(ctx context.Context, a *attempt.Attempt) error {
	id, err := s.nextID(ctx, "attempt")
	if err != nil {
		return err
	}
	a.ID = id

	m := toAttemptModel(a)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return attempt.ErrDuplicate
		}
		return fmt.Errorf("dispatch/mongo: record attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID int64) (*attempt.Attempt, error) {
	var m attemptModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": attemptID}).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, attempt.ErrNotFound
		}
		return nil, fmt.Errorf("dispatch/mongo: get attempt: %w", err)
	}
	return fromAttemptModel(&m), nil
}

func (s *Store) ListAttemptsBySubscription(ctx context.Context, subID int64, opts attempt.ListOpts) ([]*attempt.Attempt, error) {
	filter := bson.M{"subscription_id": subID}
	if opts.Success != nil {
		filter["is_success"] = *opts.Success
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.mdb.Collection(colAttempts).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var models []attemptModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: decode attempts: %w", err)
	}

	result := make([]*attempt.Attempt, len(models))
	for i := range models {
		result[i] = fromAttemptModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListAttemptsByWebhook(ctx context.Context, whID int64) ([]*attempt.Attempt, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "attempt_number", Value: 1}})

	cursor, err := s.mdb.Collection(colAttempts).Find(ctx, bson.M{"webhook_id": whID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("dispatch/mongo: list attempts by webhook: %w", err)
	}
	defer cursor.Close(ctx)

	var models []attemptModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("dispatch/mongo: decode attempts: %w", err)
	}

	result := make([]*attempt.Attempt, len(models))
	for i := range models {
		result[i] = fromAttemptModel(&models[i])
	}
	return result, nil
}

func (s *Store) PurgeAttemptsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	// Claim a batch of IDs, then delete by ID: idempotent under concurrent sweeps.
	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}

	cursor, err := s.mdb.Collection(colAttempts).Find(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}}, findOpts)
	if err != nil {
		return 0, fmt.Errorf("dispatch/mongo: purge scan: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID int64 `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("dispatch/mongo: purge decode: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	res, err := s.mdb.Collection(colAttempts).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("dispatch/mongo: purge delete: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) CountAttempts(ctx context.Context) (int64, error) {
	count, err := s.mdb.Collection(colAttempts).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("dispatch/mongo: count attempts: %w", err)
	}
	return count, nil
}
