package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Every queue operation runs as one script so a claim can never interleave
// with an enqueue for the same booking.
var (
	enqueueScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
local lease = redis.call('HGET', KEYS[4], ARGV[1])
if lease and tonumber(lease) > tonumber(ARGV[5]) then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[1])
return 1`)

	claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local jobs = {}
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local body = redis.call('HGET', KEYS[2], id)
  if body then
    redis.call('HSET', KEYS[3], id, ARGV[3])
    table.insert(jobs, body)
  end
end
return jobs`)

	retryScript = redis.NewScript(`
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[1])
return 1`)

	completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1`)
)

// redisQueue keeps due times in a sorted set keyed by booking id. Companion
// hashes hold the job payload, the id of the job that owns the booking and
// the lease deadline of an in-flight claim.
type redisQueue struct {
	client   *redis.Client
	lease    time.Duration
	schedule string
	payloads string
	owners   string
	claims   string
}

// NewRedisRefundQueue returns a RefundQueue backed by Redis. Claimed jobs are
// held for lease before an enqueue may replace them.
func NewRedisRefundQueue(client *redis.Client, key string, lease time.Duration) RefundQueue {
	return &redisQueue{
		client:   client,
		lease:    lease,
		schedule: key,
		payloads: key + ":jobs",
		owners:   key + ":owners",
		claims:   key + ":claims",
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, job RefundJob, at time.Time) (bool, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	keys := []string{q.schedule, q.payloads, q.owners, q.claims}
	added, err := enqueueScript.Run(ctx, q.client, keys, job.BookingID, body, job.ID, score(at), score(at)).Int64()
	if err != nil {
		return false, fmt.Errorf("schedule refund job: %w", err)
	}
	return added == 1, nil
}

func (q *redisQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]RefundJob, error) {
	if limit <= 0 {
		limit = 1
	}
	keys := []string{q.schedule, q.payloads, q.claims}
	bodies, err := claimScript.Run(ctx, q.client, keys, score(now), limit, score(now.Add(q.lease))).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim refund jobs: %w", err)
	}

	jobs := make([]RefundJob, 0, len(bodies))
	for _, body := range bodies {
		var job RefundJob
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return jobs, fmt.Errorf("decode refund job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *redisQueue) Retry(ctx context.Context, job RefundJob, at time.Time) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	keys := []string{q.schedule, q.payloads, q.owners, q.claims}
	if err := retryScript.Run(ctx, q.client, keys, job.BookingID, body, job.ID, score(at)).Err(); err != nil {
		return fmt.Errorf("reschedule refund job: %w", err)
	}
	return nil
}

func (q *redisQueue) Complete(ctx context.Context, job RefundJob) error {
	keys := []string{q.payloads, q.owners, q.claims}
	return completeScript.Run(ctx, q.client, keys, job.BookingID, job.ID).Err()
}

func (q *redisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.schedule).Result()
}

func score(t time.Time) int64 {
	return t.UnixMilli()
}
