package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory keeps each key's request timestamps in process memory. It is only
// correct for a single instance.
type Memory struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu      sync.Mutex
	stamps  []time.Time
	removed bool
}

// MemoryOption customises a Memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(cfg Config, opts ...MemoryOption) *Memory {
	m := &Memory{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow never blocks on I/O and never returns an error.
func (m *Memory) Allow(_ context.Context, key string) (Result, error) {
	now := m.now()

	for {
		w := m.window(key)

		w.mu.Lock()
		if w.removed {
			// Swept between lookup and lock; fetch the replacement.
			w.mu.Unlock()
			continue
		}
		res := m.decide(w, now)
		w.mu.Unlock()

		return res, nil
	}
}

func (m *Memory) window(key string) *window {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	return w
}

// decide must be called with w.mu held.
func (m *Memory) decide(w *window, now time.Time) Result {
	w.prune(now.Add(-m.cfg.Window))

	resetAfter := m.cfg.Window
	if len(w.stamps) > 0 {
		resetAfter = m.cfg.Window - now.Sub(w.stamps[0])
	}

	count := len(w.stamps)
	if count >= m.cfg.Requests {
		return Result{Limit: m.cfg.Requests, ResetAfter: resetAfter}
	}

	w.stamps = append(w.stamps, now)
	return Result{
		Allowed:    true,
		Limit:      m.cfg.Requests,
		Remaining:  m.cfg.Requests - count - 1,
		ResetAfter: resetAfter,
	}
}

// prune drops every timestamp at or before windowStart. Stamps are appended
// in order, so the survivors are a suffix.
func (w *window) prune(windowStart time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(windowStart) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// Sweep deletes keys whose windows have fully decayed and reports how many
// were removed. It bounds memory for clients that stop sending requests.
func (m *Memory) Sweep(_ context.Context) (int, error) {
	windowStart := m.now().Add(-m.cfg.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		w.mu.Lock()
		w.prune(windowStart)
		if len(w.stamps) == 0 {
			w.removed = true
			delete(m.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed, nil
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
