package store

import (
	"context"
	"sync"
)

// Memory keeps encoded artifacts in a map for the lifetime of the process
type Memory struct {
	mu    sync.RWMutex
	items map[Key][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{items: make(map[Key][]byte)}
}

func (m *Memory) Get(ctx context.Context, key Key, dst any) (bool, error) {
	m.mu.RLock()
	data, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, unmarshal(data, dst)
}

func (m *Memory) Put(ctx context.Context, key Key, v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key] = data
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored artifacts
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error {
	return nil
}
