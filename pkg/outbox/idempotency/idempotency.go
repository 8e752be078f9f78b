// Package idempotency claims processed markers in Redis so redelivered
// Pub/Sub messages and replayed webhooks are applied once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-payouts/pkg/redis"
)

const processedScope = "evt:processed"

var (
	errStoreRequired = errors.New("idempotency store is required")
	errNegativeTTL   = errors.New("ttl must be non-negative")
	errKeyRequired   = errors.New("idempotency key is required")
)

// Guard claims keys inside one scope. Keys render as
// pf:idempotency:<scope>:<key>.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*Guard, error) {
	if store == nil {
		return nil, errStoreRequired
	}
	if ttl < 0 {
		return nil, errNegativeTTL
	}
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("scope is required")
	}
	return &Guard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim reports true when key was already claimed by an earlier delivery.
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, errKeyRequired
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", g.scope, err)
	}
	return !set, nil
}

// Release frees key so a redelivery can be applied after a failed attempt.
func (g *Guard) Release(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return errKeyRequired
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, key))
}

// Manager hands out one processed-event guard per consumer.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errStoreRequired
	}
	if ttl < 0 {
		return nil, errNegativeTTL
	}
	return &Manager{store: store, ttl: ttl}, nil
}

func (m *Manager) guard(consumer string) (*Guard, error) {
	if strings.TrimSpace(consumer) == "" {
		return nil, errors.New("consumer name is required")
	}
	return &Guard{store: m.store, ttl: m.ttl, scope: processedScope + ":" + consumer}, nil
}

// CheckAndMarkProcessed returns true when consumer already handled eventID.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	g, err := m.guard(consumer)
	if err != nil {
		return false, err
	}
	return g.Claim(ctx, eventID)
}

func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	g, err := m.guard(consumer)
	if err != nil {
		return err
	}
	return g.Release(ctx, eventID)
}
