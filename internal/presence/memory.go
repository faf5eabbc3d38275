package presence

import (
	"context"
	"sync"
)

// MemoryRegistry is an in-process Registry for tests and single-instance
// development runs.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]string)}
}

func (m *MemoryRegistry) SetOnline(_ context.Context, userID, connRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = connRef
	return nil
}

func (m *MemoryRegistry) ConnRef(_ context.Context, userID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.entries[userID]
	return ref, ok, nil
}

func (m *MemoryRegistry) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[userID]
	return ok, nil
}

func (m *MemoryRegistry) ClearOnline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}
