package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"landing-page-generator/internal/config"
	"landing-page-generator/internal/models"
)

// ErrEventNotFound is returned by Load when an event body has expired or was acked.
var ErrEventNotFound = errors.New("event not found")

// RedisQueue coordinates ready, in-flight, and scheduled event queues in Redis.
// Queues hold event ids; the event body lives in a per-event hash.
type RedisQueue struct {
	client         *redis.Client
	priorityQueues []string
	inflightKey    string
	scheduledKey   string
	eventPrefix    string
	visibilityTTL  time.Duration
	dlqKey         string
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg)
}

// NewRedisQueueWithClient reuses an existing client.
func NewRedisQueueWithClient(client *redis.Client, cfg config.Config) *RedisQueue {
	priorities := cfg.PriorityQueues
	if len(priorities) == 0 {
		priorities = []string{"default"}
	}
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 30 * time.Second
	}
	dlq := cfg.DLQName
	if dlq == "" {
		dlq = "queue:dlq"
	}
	return &RedisQueue{
		client:         client,
		priorityQueues: priorities,
		inflightKey:    "queue:inflight",
		scheduledKey:   "queue:scheduled",
		eventPrefix:    "queue:event:",
		visibilityTTL:  visibility,
		dlqKey:         dlq,
	}
}

func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) VisibilityTimeout() time.Duration {
	return q.visibilityTTL
}

func (q *RedisQueue) readyKey(priority string) string {
	return fmt.Sprintf("queue:ready:%s", priority)
}

func (q *RedisQueue) eventKey(eventID string) string {
	return q.eventPrefix + eventID
}

func normalizePriority(p string) string {
	if p == "" {
		return "default"
	}
	return p
}

// Enqueue stores the event and places its id into either the scheduled set or the ready queue.
func (q *RedisQueue) Enqueue(ctx context.Context, ev models.Event, priority string, runAt time.Time) error {
	if ev.ID == "" {
		return errors.New("event id is required")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	priority = normalizePriority(priority)
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.eventKey(ev.ID), "priority", priority, "body", body)
	if runAt.After(time.Now()) {
		pipe.ZAdd(ctx, q.scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: ev.ID})
	} else {
		pipe.RPush(ctx, q.readyKey(priority), ev.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Schedule rewrites the stored event (e.g. its attempt count) and defers it until runAt.
func (q *RedisQueue) Schedule(ctx context.Context, ev models.Event, priority string, runAt time.Time) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.eventKey(ev.ID), "priority", normalizePriority(priority), "body", body)
	pipe.ZAdd(ctx, q.scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: ev.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// Load reads an event body and its priority.
func (q *RedisQueue) Load(ctx context.Context, eventID string) (models.Event, string, error) {
	vals, err := q.client.HGetAll(ctx, q.eventKey(eventID)).Result()
	if err != nil {
		return models.Event{}, "", err
	}
	body, ok := vals["body"]
	if !ok {
		return models.Event{}, "", ErrEventNotFound
	}
	var ev models.Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return models.Event{}, "", fmt.Errorf("decode event %s: %w", eventID, err)
	}
	return ev, normalizePriority(vals["priority"]), nil
}

func (q *RedisQueue) priorityOf(ctx context.Context, eventID string) string {
	priority, err := q.client.HGet(ctx, q.eventKey(eventID), "priority").Result()
	if err != nil {
		return "default"
	}
	return normalizePriority(priority)
}

// PromoteScheduled moves due scheduled events into ready queues. It returns how many were promoted.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduledKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.scheduledKey, id)
		pipe.RPush(ctx, q.readyKey(q.priorityOf(ctx, id)), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DequeueWithLease pops an event id from ready queues (priority order) and places it into inflight with a visibility timeout.
func (q *RedisQueue) DequeueWithLease(ctx context.Context) (string, error) {
	keys := make([]string, 0, len(q.priorityQueues)+1)
	for _, p := range q.priorityQueues {
		keys = append(keys, q.readyKey(p))
	}
	keys = append(keys, q.inflightKey)

	res, err := dequeueScript.Run(ctx, q.client, keys, time.Now().Add(q.visibilityTTL).UnixMilli()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	id, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return id, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight event.
func (q *RedisQueue) ExtendLease(ctx context.Context, eventID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: eventID,
	}).Err()
}

// Ack removes an event from in-flight tracking. The body is kept while the
// event is still scheduled for a retry.
func (q *RedisQueue) Ack(ctx context.Context, eventID string) error {
	return q.client.ZRem(ctx, q.inflightKey, eventID).Err()
}

// Complete acks an event and drops its body.
func (q *RedisQueue) Complete(ctx context.Context, eventID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, eventID)
	pipe.Del(ctx, q.eventKey(eventID))
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueExpired reclaims leases that timed out, re-enqueuing them.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.RPush(ctx, q.readyKey(q.priorityOf(ctx, id)), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// Cancel removes an event from ready, scheduled, and in-flight sets.
func (q *RedisQueue) Cancel(ctx context.Context, eventID string) error {
	pipe := q.client.TxPipeline()
	for _, p := range q.priorityQueues {
		pipe.LRem(ctx, q.readyKey(p), 0, eventID)
	}
	pipe.ZRem(ctx, q.inflightKey, eventID)
	pipe.ZRem(ctx, q.scheduledKey, eventID)
	pipe.Del(ctx, q.eventKey(eventID))
	_, err := pipe.Exec(ctx)
	return err
}

// DLQPush appends to the dead-letter queue for operational inspection.
func (q *RedisQueue) DLQPush(ctx context.Context, eventID string) error {
	return q.client.RPush(ctx, q.dlqKey, eventID).Err()
}

// DLQPeek reads the oldest dead-lettered event ids.
func (q *RedisQueue) DLQPeek(ctx context.Context, count int64) ([]string, error) {
	return q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
}

// ReadyDepth returns the total length of all ready queues.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(q.priorityQueues))
	for _, p := range q.priorityQueues {
		cmds = append(cmds, pipe.LLen(ctx, q.readyKey(p)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	var total int64
	for _, c := range cmds {
		total += c.Val()
	}
	return total, nil
}

var dequeueScript = redis.NewScript(`
local inflight = KEYS[#KEYS]
for i=1,#KEYS-1 do
  local id = redis.call('LPOP', KEYS[i])
  if id then
    redis.call('ZADD', inflight, ARGV[1], id)
    return id
  end
end
return nil
`)
