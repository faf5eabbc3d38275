// Package directory caches registered public keys so peers can look up
// who they are encrypting for. Keys are trusted on first use; the server
// never validates or uses them itself.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Directory maps user IDs to their registered public keys.
type Directory interface {
	Register(ctx context.Context, userID, publicKey string) error
	Lookup(ctx context.Context, userID string) (string, bool, error)
}

func publicKeyKey(userID string) string {
	return fmt.Sprintf("publicKey:%s", userID)
}

// RedisDirectory stores keys in the shared Redis instance.
type RedisDirectory struct {
	client *redis.Client
}

func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

func (d *RedisDirectory) Register(ctx context.Context, userID, publicKey string) error {
	return d.client.Set(ctx, publicKeyKey(userID), publicKey, 0).Err()
}

func (d *RedisDirectory) Lookup(ctx context.Context, userID string) (string, bool, error) {
	key, err := d.client.Get(ctx, publicKeyKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

// MemoryDirectory is an in-process Directory for tests.
type MemoryDirectory struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{keys: make(map[string]string)}
}

func (d *MemoryDirectory) Register(_ context.Context, userID, publicKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[userID] = publicKey
	return nil
}

func (d *MemoryDirectory) Lookup(_ context.Context, userID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.keys[userID]
	return key, ok, nil
}
