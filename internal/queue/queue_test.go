package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client), mr
}

func TestRedisQueueRoundTrip(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, NewStoreMessageJob(storedMsg("m1"))); err != nil {
		t.Fatal(err)
	}

	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil {
		t.Fatal("expected a delivery")
	}
	if d.Job.Kind != KindStoreMessage || d.Job.StoreMessage.Message.MessageID != "m1" {
		t.Fatalf("unexpected job: %+v", d.Job)
	}

	if err := q.Ack(ctx, d); err != nil {
		t.Fatal(err)
	}
	if n, _ := mr.List(keyActive); len(n) != 0 {
		t.Fatalf("active list should be empty after ack, got %v", n)
	}
	if mr.Exists(keyLeases) {
		t.Fatal("lease should be dropped after ack")
	}
}

// TestRedisQueueRedeliversAbandonedJob simulates a consumer crash: the
// job is dequeued but never acked, retried or failed. Once the lease
// expires the next dequeue must hand it out again with the attempt
// counter bumped.
func TestRedisQueueRedeliversAbandonedJob(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	q.Visibility = 20 * time.Millisecond
	ctx := context.Background()

	if err := q.Enqueue(ctx, NewStoreMessageJob(storedMsg("m1"))); err != nil {
		t.Fatal(err)
	}

	d1, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d1 == nil {
		t.Fatal("expected a delivery")
	}
	// The consumer dies here: no Ack, no Retry, no Fail.

	time.Sleep(50 * time.Millisecond)

	d2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d2 == nil {
		t.Fatal("abandoned job should be redelivered after its lease expires")
	}
	if got := d2.Job.StoreMessage.Message.MessageID; got != "m1" {
		t.Fatalf("expected redelivery of m1, got %q", got)
	}
	if d2.Job.Attempt != d1.Job.Attempt+1 {
		t.Fatalf("redelivery should bump attempt: had %d, got %d", d1.Job.Attempt, d2.Job.Attempt)
	}
}

func TestRedisQueueRetryBecomesVisibleAfterDelay(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, NewUpdateStatusJob("m1", "delivered"))
	d, err := q.Dequeue(ctx)
	if err != nil || d == nil {
		t.Fatalf("dequeue: %v, %v", d, err)
	}

	if err := q.Retry(ctx, d, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)

	d2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d2 == nil {
		t.Fatal("retried job should reappear after its delay")
	}
	if d2.Job.Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", d2.Job.Attempt)
	}
}

func TestRedisQueueFailParks(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, NewStoreMessageJob(storedMsg("m1")))
	d, err := q.Dequeue(ctx)
	if err != nil || d == nil {
		t.Fatalf("dequeue: %v, %v", d, err)
	}

	if err := q.Fail(ctx, d); err != nil {
		t.Fatal(err)
	}

	failed, err := mr.List(keyFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 parked job, got %d", len(failed))
	}
	if active, _ := mr.List(keyActive); len(active) != 0 {
		t.Fatalf("active list should be empty after fail, got %v", active)
	}
}
