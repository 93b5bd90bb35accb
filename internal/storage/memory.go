package storage

import (
	"sync"
	"time"
)

// Memory keeps values in a map. Used by tests and ephemeral runs.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	stamps map[string]time.Time
	closed bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string), stamps: make(map[string]time.Time)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	m.stamps[key] = time.Now()
	return nil
}

func (m *Memory) UpdatedAt(key string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return time.Time{}, ErrClosed
	}
	ts, ok := m.stamps[key]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return ts, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var (
	_ KV          = (*Memory)(nil)
	_ Timestamped = (*Memory)(nil)
)
