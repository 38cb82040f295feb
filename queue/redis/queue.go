// Package redis implements the dispatch queue on Redis via Grove KV.
//
// Each lane is a pair of sorted sets: "pending" scored by visible-at and
// "inflight" scored by lease deadline, plus one JSON payload key per task.
// Claims move members from pending to inflight atomically with a Lua script,
// so concurrent worker processes never double-claim a visible task. Tasks
// whose lease deadline has passed are swept back to pending at the start of
// every claim, which is what makes delivery at-least-once.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	"github.com/hookline/dispatch/queue"
)

// compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

// Queue implements queue.Queue using Redis via Grove KV.
type Queue struct {
	kv                *kv.Store
	rdb               goredis.UniversalClient
	visibilityTimeout time.Duration
}

// New creates a Redis queue backed by Grove KV with the given visibility
// timeout for claimed tasks.
func New(store *kv.Store, visibilityTimeout time.Duration) *Queue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &Queue{
		kv:                store,
		rdb:               redisdriver.UnwrapClient(store),
		visibilityTimeout: visibilityTimeout,
	}
}

// Key layout per lane.
const (
	keyPending  = "dispatch:q:%s:pending"  // zset: member=task ID, score=visible-at
	keyInflight = "dispatch:q:%s:inflight" // zset: member=task ID, score=lease deadline
	keyTask     = "dispatch:q:%s:task:"    // + task ID → JSON payload
)

func pendingKey(lane queue.Lane) string  { return fmt.Sprintf(keyPending, lane) }
func inflightKey(lane queue.Lane) string { return fmt.Sprintf(keyInflight, lane) }
func taskKey(lane queue.Lane, taskID string) string {
	return fmt.Sprintf(keyTask, lane) + taskID
}

// scoreFromTime converts a time.Time to a sorted set score (unix seconds as float64).
func scoreFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// claimScript atomically requeues expired in-flight tasks, then claims up to
// the requested number of due pending tasks into the in-flight set.
// KEYS[1] = pending zset
// KEYS[2] = inflight zset
// ARGV[1] = current unix timestamp
// ARGV[2] = limit
// ARGV[3] = lease deadline unix timestamp
var claimScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for i, id in ipairs(expired) do
    redis.call('ZREM', KEYS[2], id)
    redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('ZADD', KEYS[2], ARGV[3], id)
end
return ids
`)

// Enqueue stores the task payload and scores it on the pending set.
func (q *Queue) Enqueue(ctx context.Context, lane queue.Lane, t *queue.Task, delay time.Duration) error {
	raw, err := t.Encode()
	if err != nil {
		return err
	}

	if err := q.kv.SetRaw(ctx, taskKey(lane, t.ID.String()), raw); err != nil {
		return fmt.Errorf("dispatch/redis: enqueue payload: %w", err)
	}

	visibleAt := time.Now().UTC().Add(delay)
	if err := q.rdb.ZAdd(ctx, pendingKey(lane), goredis.Z{
		Score:  scoreFromTime(visibleAt),
		Member: t.ID.String(),
	}).Err(); err != nil {
		return fmt.Errorf("dispatch/redis: enqueue score: %w", err)
	}
	return nil
}

// Dequeue atomically claims up to limit due tasks from the lane.
func (q *Queue) Dequeue(ctx context.Context, lane queue.Lane, limit int) ([]*queue.Lease, error) {
	now := time.Now().UTC()
	deadline := now.Add(q.visibilityTimeout)

	result, err := claimScript.Run(ctx, q.rdb,
		[]string{pendingKey(lane), inflightKey(lane)},
		strconv.FormatFloat(scoreFromTime(now), 'f', -1, 64),
		limit,
		strconv.FormatFloat(scoreFromTime(deadline), 'f', -1, 64),
	).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispatch/redis: claim script: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	leases := make([]*queue.Lease, 0, len(result))
	for _, taskID := range result {
		raw, getErr := q.kv.GetRaw(ctx, taskKey(lane, taskID))
		if getErr != nil {
			if kvNotFound(getErr) {
				// Payload gone (acked by a racing claim): drop the member.
				q.rdb.ZRem(ctx, inflightKey(lane), taskID)
				continue
			}
			return nil, fmt.Errorf("dispatch/redis: claim payload: %w", getErr)
		}

		t, decErr := queue.DecodeTask(raw)
		if decErr != nil {
			return nil, decErr
		}
		leases = append(leases, &queue.Lease{
			Task:  t,
			Token: leaseToken(lane, taskID),
		})
	}

	return leases, nil
}

// Ack removes the claimed task and its payload permanently.
func (q *Queue) Ack(ctx context.Context, lease *queue.Lease) error {
	lane, taskID, err := splitLeaseToken(lease.Token)
	if err != nil {
		return err
	}

	pipe := q.rdb.Pipeline()
	pipe.ZRem(ctx, inflightKey(lane), taskID)
	pipe.ZRem(ctx, pendingKey(lane), taskID)
	pipe.Del(ctx, taskKey(lane, taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: ack: %w", err)
	}
	return nil
}

// Nack moves the claimed task back to pending, immediately visible.
func (q *Queue) Nack(ctx context.Context, lease *queue.Lease) error {
	lane, taskID, err := splitLeaseToken(lease.Token)
	if err != nil {
		return err
	}

	pipe := q.rdb.Pipeline()
	pipe.ZRem(ctx, inflightKey(lane), taskID)
	pipe.ZAdd(ctx, pendingKey(lane), goredis.Z{
		Score:  scoreFromTime(time.Now().UTC()),
		Member: taskID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch/redis: nack: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.kv.Ping(ctx)
}

// Close closes the KV store.
func (q *Queue) Close() error {
	return q.kv.Close()
}

// CountPending returns the number of tasks scored on the lane's pending set,
// due or not.
func (q *Queue) CountPending(ctx context.Context, lane queue.Lane) (int64, error) {
	n, err := q.rdb.ZCard(ctx, pendingKey(lane)).Result()
	if err != nil {
		return 0, fmt.Errorf("dispatch/redis: count pending: %w", err)
	}
	return n, nil
}

// Lease tokens carry the lane so Ack/Nack do not need one passed separately.
// Format: "<lane>/<task id>".
func leaseToken(lane queue.Lane, taskID string) string {
	return string(lane) + "/" + taskID
}

func splitLeaseToken(token string) (queue.Lane, string, error) {
	for i := 0; i < len(token); i++ {
		if token[i] == '/' {
			return queue.Lane(token[:i]), token[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("dispatch/redis: malformed lease token %q", token)
}

// kvNotFound checks if an error is a KV not-found sentinel.
func kvNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}
