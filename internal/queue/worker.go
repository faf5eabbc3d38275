package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
	"github.com/bhaavyasura7/E2ee-chat/internal/store"
)

// Worker drains the queue into the message store. Jobs that throw are
// retried with exponential backoff up to MaxAttempts executions; after
// that they are parked on the failed list and logged, never dropped.
type Worker struct {
	queue  Queue
	store  store.MessageStore
	logger zerolog.Logger

	MaxAttempts int
	Backoff     time.Duration
}

// NewWorker creates a worker with the given retry policy.
func NewWorker(q Queue, s store.MessageStore, logger zerolog.Logger, maxAttempts int, backoff time.Duration) *Worker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		queue:       q,
		store:       s,
		logger:      logger,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger.Error().Err(err).Msg("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if d == nil {
			continue
		}

		w.handle(ctx, d)
	}
}

func (w *Worker) handle(ctx context.Context, d *Delivery) {
	err := w.apply(ctx, d.Job)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, d); ackErr != nil {
			// The job will be redelivered; apply is idempotent.
			w.logger.Warn().Err(ackErr).Msg("ack failed, job may replay")
		}
		metrics.JobsProcessed.WithLabelValues(string(d.Job.Kind)).Inc()
		w.logger.Debug().
			Str("kind", string(d.Job.Kind)).
			Int("attempt", d.Job.Attempt).
			Msg("job applied")
		return
	}

	attempts := d.Job.Attempt + 1
	if attempts >= w.MaxAttempts {
		metrics.JobsFailed.Inc()
		w.logger.Error().
			Err(err).
			Str("kind", string(d.Job.Kind)).
			Int("attempts", attempts).
			Msg("job exhausted retries, parked on failed list")
		if failErr := w.queue.Fail(ctx, d); failErr != nil {
			w.logger.Error().Err(failErr).Msg("parking failed job failed")
		}
		return
	}

	delay := w.Backoff << uint(d.Job.Attempt)
	metrics.JobsRetried.Inc()
	w.logger.Warn().
		Err(err).
		Str("kind", string(d.Job.Kind)).
		Int("attempt", attempts).
		Dur("delay", delay).
		Msg("job failed, retrying")
	if retryErr := w.queue.Retry(ctx, d, delay); retryErr != nil {
		w.logger.Error().Err(retryErr).Msg("scheduling retry failed")
	}
}

// apply executes one job against the store. The switch is exhaustive
// over the closed job set; anything else is a permanent error.
func (w *Worker) apply(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	switch job.Kind {
	case KindStoreMessage:
		msg := job.StoreMessage.Message
		return w.store.UpsertMessage(ctx, &msg)
	case KindUpdateStatus:
		return w.store.UpdateStatus(ctx, job.UpdateStatus.MessageID, job.UpdateStatus.Status)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}
