package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
)

// Redis keys for the durable queue.
const (
	keyWaiting = "queue:messages:waiting"
	keyActive  = "queue:messages:active"
	keyDelayed = "queue:messages:delayed"
	keyFailed  = "queue:messages:failed"
	keyLeases  = "queue:messages:leases"
)

// dequeueBlock bounds how long a Dequeue call blocks so the worker can
// notice context cancellation and promote delayed jobs.
const dequeueBlock = time.Second

// defaultVisibility is how long a dequeued job may sit on the active
// list before another consumer may reclaim it.
const defaultVisibility = 30 * time.Second

// Delivery is a dequeued job plus the opaque receipt the queue needs to
// ack, retry or fail it.
type Delivery struct {
	Job Job
	raw string
}

// Queue is the durable at-least-once job queue. Enqueue is
// fire-and-forget from the publisher's perspective; the consumer side is
// Dequeue followed by exactly one of Ack, Retry or Fail.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks briefly and returns nil when no job is available.
	Dequeue(ctx context.Context) (*Delivery, error)

	Ack(ctx context.Context, d *Delivery) error
	Retry(ctx context.Context, d *Delivery, delay time.Duration) error
	Fail(ctx context.Context, d *Delivery) error
}

// RedisQueue implements Queue on Redis lists: producers LPUSH onto the
// waiting list, consumers move jobs to a per-queue active list while
// executing them, retries park in a delayed sorted set scored by their
// due time, and exhausted jobs land on the failed list for operators.
//
// Every dequeued job also gets a lease in a sorted set scored by its
// expiry. A consumer that dies mid-execution leaves the job on the
// active list; once its lease expires the next Dequeue moves it back to
// waiting with the attempt counter bumped, so a crash redelivers the job
// instead of stranding it.
type RedisQueue struct {
	client *redis.Client

	// Visibility is the lease duration granted per dequeue. Executions
	// longer than this may be redelivered to another consumer.
	Visibility time.Duration
}

// NewRedisQueue creates a queue on an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, Visibility: defaultVisibility}
}

// Enqueue appends job to the waiting list.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	start := time.Now()
	err = q.client.LPush(ctx, keyWaiting, data).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	metrics.JobsEnqueued.WithLabelValues(string(job.Kind)).Inc()
	return nil
}

// Dequeue promotes due delayed jobs, reclaims abandoned active jobs,
// then blocks for up to a second moving one job from waiting to active.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}
	if err := q.reclaimExpired(ctx); err != nil {
		return nil, err
	}

	raw, err := q.client.BRPopLPush(ctx, keyWaiting, keyActive, dequeueBlock).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// A payload that cannot even be decoded goes straight to the
		// failed list; retrying cannot fix it.
		q.client.LRem(ctx, keyActive, 1, raw)
		q.client.LPush(ctx, keyFailed, raw)
		return nil, fmt.Errorf("undecodable job parked: %w", err)
	}

	q.client.ZAdd(ctx, keyLeases, redis.Z{
		Score:  float64(time.Now().Add(q.visibility()).UnixMilli()),
		Member: raw,
	})

	return &Delivery{Job: job, raw: raw}, nil
}

func (q *RedisQueue) visibility() time.Duration {
	if q.Visibility <= 0 {
		return defaultVisibility
	}
	return q.Visibility
}

// promoteDue moves delayed jobs whose due time has passed back onto the
// waiting list.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, raw := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, keyDelayed, raw)
		pipe.LPush(ctx, keyWaiting, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// reclaimExpired requeues active jobs whose lease has run out. The
// attempt counter is bumped so a job that keeps killing its consumer
// still converges on the failed list instead of cycling forever. Active
// entries missing a lease entirely (a crash between the pop and the
// lease write) are granted a fresh one so they expire too.
func (q *RedisQueue) reclaimExpired(ctx context.Context) error {
	now := time.Now().UnixMilli()
	expired, err := q.client.ZRangeByScore(ctx, keyLeases, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return err
	}

	for _, raw := range expired {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			pipe := q.client.TxPipeline()
			pipe.ZRem(ctx, keyLeases, raw)
			pipe.LRem(ctx, keyActive, 1, raw)
			pipe.LPush(ctx, keyFailed, raw)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			continue
		}
		job.Attempt++
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}

		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, keyLeases, raw)
		pipe.LRem(ctx, keyActive, 1, raw)
		pipe.LPush(ctx, keyWaiting, data)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}

	active, err := q.client.LRange(ctx, keyActive, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, raw := range active {
		if err := q.client.ZScore(ctx, keyLeases, raw).Err(); err == nil {
			continue
		} else if !errors.Is(err, redis.Nil) {
			return err
		}
		q.client.ZAdd(ctx, keyLeases, redis.Z{
			Score:  float64(time.Now().Add(q.visibility()).UnixMilli()),
			Member: raw,
		})
	}
	return nil
}

// Ack removes a completed job from the active list and drops its lease.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, keyActive, 1, d.raw)
	pipe.ZRem(ctx, keyLeases, d.raw)
	_, err := pipe.Exec(ctx)
	return err
}

// Retry reschedules d after delay with its attempt counter bumped.
func (q *RedisQueue) Retry(ctx context.Context, d *Delivery, delay time.Duration) error {
	retried := d.Job
	retried.Attempt++
	data, err := json.Marshal(retried)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, keyActive, 1, d.raw)
	pipe.ZRem(ctx, keyLeases, d.raw)
	pipe.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: string(data),
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Fail parks d on the failed list. Failed jobs are never deleted by the
// queue; they wait for an operator.
func (q *RedisQueue) Fail(ctx context.Context, d *Delivery) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, keyActive, 1, d.raw)
	pipe.ZRem(ctx, keyLeases, d.raw)
	pipe.LPush(ctx, keyFailed, d.raw)
	_, err := pipe.Exec(ctx)
	return err
}
