package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for tests. Retry semantics match
// the Redis queue: delayed jobs become visible again after their delay.
type MemoryQueue struct {
	mu      sync.Mutex
	waiting []Job
	failed  []Job
	notify  chan struct{}
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	q.waiting = append(q.waiting, job)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	q.mu.Lock()
	if len(q.waiting) > 0 {
		job := q.waiting[0]
		q.waiting = q.waiting[1:]
		q.mu.Unlock()
		return &Delivery{Job: job}, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.notify:
		return q.Dequeue(ctx)
	case <-time.After(dequeueBlock):
		return nil, nil
	}
}

func (q *MemoryQueue) Ack(_ context.Context, _ *Delivery) error {
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, d *Delivery, delay time.Duration) error {
	retried := d.Job
	retried.Attempt++
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		q.waiting = append(q.waiting, retried)
		q.mu.Unlock()
		q.wake()
	})
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	q.failed = append(q.failed, d.Job)
	q.mu.Unlock()
	return nil
}

// Failed returns the jobs that exhausted their retries.
func (q *MemoryQueue) Failed() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.failed))
	copy(out, q.failed)
	return out
}

// Depth returns the number of currently visible jobs.
func (q *MemoryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
