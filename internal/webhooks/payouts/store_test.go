package payoutwebhook

import (
	"context"
	"sync"
	"time"
)

// memoryIdempotencyStore stands in for Redis in service tests.
type memoryIdempotencyStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	// forget makes every claim succeed, as after a key expired.
	forget bool
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{values: map[string]string{}}
}

func (m *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.forget {
		return true, nil
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = "1"
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "pf:idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}
