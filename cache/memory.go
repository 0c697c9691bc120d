package cache

import (
	"context"
	"sync"
)

// Memory keeps entries in a map, for a single process.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[key]
	return data, ok, nil
}

func (m *Memory) Store(_ context.Context, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.entries[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
