// Package store provides the scoped key-value persistence used for
// crash-safe Practice-mode session state, plus the debounced writer that
// coalesces bursts of mutations into one write.
package store

import "sync"

// Store is a synchronous key-value interface. Implementations must treat
// infrastructure failures as "value absent": Get returns false, Set and
// Remove are best-effort. Nothing in the exam path surfaces a storage
// error to the student.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Memory is an in-process Store. Used in tests and as the fallback when
// no Redis is configured.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}
