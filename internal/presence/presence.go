// Package presence tracks which connection currently owns a user's
// session. The registry is shared by all relay instances; writes are
// last-writer-wins, so a concurrent login from another instance simply
// takes over routing.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bhaavyasura7/E2ee-chat/internal/metrics"
)

// Registry is the shared online-user map. Absence of an entry never
// blocks an operation; it only means real-time delivery is skipped.
type Registry interface {
	SetOnline(ctx context.Context, userID, connRef string) error
	ConnRef(ctx context.Context, userID string) (string, bool, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	ClearOnline(ctx context.Context, userID string) error
}

// onlineKey returns the key for a user's presence entry.
func onlineKey(userID string) string {
	return fmt.Sprintf("online:%s", userID)
}

// RedisRegistry is the Redis-backed Registry used in production.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry on an existing Redis client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// SetOnline records connRef as the owner of userID's session.
func (r *RedisRegistry) SetOnline(ctx context.Context, userID, connRef string) error {
	start := time.Now()
	err := r.client.Set(ctx, onlineKey(userID), connRef, 0).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// ConnRef returns the connection currently owning userID's session.
func (r *RedisRegistry) ConnRef(ctx context.Context, userID string) (string, bool, error) {
	ref, err := r.client.Get(ctx, onlineKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ref, true, nil
}

// IsOnline reports whether userID has a presence entry.
func (r *RedisRegistry) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearOnline removes userID's presence entry.
func (r *RedisRegistry) ClearOnline(ctx context.Context, userID string) error {
	return r.client.Del(ctx, onlineKey(userID)).Err()
}
