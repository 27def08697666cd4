package kvstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. The Fail* fields inject errors for
// tests; a non-nil value is returned by every call of that operation.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
	sets int

	FailGet    error
	FailSet    error
	FailDelete error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet != nil {
		return "", false, m.FailGet
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	m.data[key] = value
	m.sets++
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	delete(m.data, key)
	return nil
}

// SetFailSet changes the injected Set error while other goroutines may be
// using the store.
func (m *MemoryStore) SetFailSet(err error) {
	m.mu.Lock()
	m.FailSet = err
	m.mu.Unlock()
}

// Sets returns the number of successful Set calls.
func (m *MemoryStore) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// Keys returns the number of stored keys.
func (m *MemoryStore) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
