package relay

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-instance runs.
// Like the Redis bus it multicasts to every current subscriber. Sends
// are non-blocking: a subscriber that stops draining loses payloads
// instead of wedging publishers, matching the best-effort contract.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[chan Payload]struct{}
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[chan Payload]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, p Payload) error {
	// Sends and closes both happen under the mutex, so a concurrent
	// unsubscribe can never close a channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Payload, error) {
	ch := make(chan Payload, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}
