// Package denylist records single-use token ids until they expire, so a
// rotated refresh token cannot be replayed and a logged-out one cannot be
// used again.
package denylist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// List marks ids as spent.
type List interface {
	// Consume marks id as spent until the given time. It reports true the
	// first time an id is consumed and false for every later attempt.
	Consume(ctx context.Context, id string, until time.Time) (bool, error)

	// Contains reports whether id has been consumed and not yet expired.
	Contains(ctx context.Context, id string) (bool, error)
}

// New returns the Redis-backed list when a client is supplied, otherwise an
// in-process one.
func New(client *redis.Client) List {
	if client != nil {
		return NewRedis(client)
	}
	return NewMemory()
}

// Memory is a process-local List.
type Memory struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, entries: make(map[string]time.Time)}
}

// WithClock overrides time.Now, for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Consume(_ context.Context, id string, until time.Time) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.entries[id]; ok && now.Before(exp) {
		return false, nil
	}
	if !now.Before(until) {
		// Already expired; nothing to remember.
		return true, nil
	}
	m.entries[id] = until
	return true, nil
}

func (m *Memory) Contains(_ context.Context, id string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[id]
	return ok && now.Before(exp), nil
}

// Sweep drops expired ids and reports how many were removed.
func (m *Memory) Sweep(_ context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Redis stores ids as keys with a TTL so all instances share one list.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, prefix: "denylist:"}
}

func (r *Redis) Consume(ctx context.Context, id string, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl <= 0 {
		return true, nil
	}

	ok, err := r.client.SetNX(ctx, r.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis denylist: consume failed: %w", err)
	}
	return ok, nil
}

func (r *Redis) Contains(ctx context.Context, id string) (bool, error) {
	err := r.client.Get(ctx, r.prefix+id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis denylist: lookup failed: %w", err)
	}
	return true, nil
}
