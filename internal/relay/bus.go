// Package relay implements the cross-instance fan-out path: every relay
// instance publishes to and subscribes from one shared channel, and each
// subscriber independently forwards payloads to whichever target
// connections are local to it.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
)

// Channel is the single logical bus channel all traffic flows on.
const Channel = "chat"

// Bus is the publish/subscribe fan-out shared by all instances.
// Publish order on the channel is the only ordering guarantee.
type Bus interface {
	Publish(ctx context.Context, p Payload) error
	Subscribe(ctx context.Context) (<-chan Payload, error)
}

// RedisBus carries payloads over a Redis pub/sub channel.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisBus creates a bus on an existing Redis client.
func NewRedisBus(client *redis.Client, logger zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

// Publish sends p to every current subscriber. There is no delivery
// acknowledgement back to the publisher.
func (b *RedisBus) Publish(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.client.Publish(ctx, Channel, data).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	metrics.MessagesPublished.WithLabelValues(p.Type).Inc()
	return nil
}

// Subscribe starts consuming the channel. The returned channel closes
// when ctx is cancelled. Malformed payloads are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Payload, error) {
	sub := b.client.Subscribe(ctx, Channel)

	// Force the subscription to be established before returning
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan Payload, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var p Payload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					b.logger.Warn().Err(err).Msg("dropping malformed bus payload")
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
