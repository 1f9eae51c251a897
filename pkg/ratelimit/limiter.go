// Package ratelimit implements sliding-window admission control with an
// in-process backend and a Redis backend that share one contract.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Result is the outcome of one admission decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int

	// ResetAfter is how long until the oldest request in the window ages out,
	// or the full window when the window was empty.
	ResetAfter time.Duration
}

// ResetSeconds rounds ResetAfter up to whole seconds, as used by the
// X-RateLimit-Reset and Retry-After headers.
func (r Result) ResetSeconds() int {
	return int(math.Ceil(r.ResetAfter.Seconds()))
}

// Config is shared by both backends.
type Config struct {
	Requests int
	Window   time.Duration
}

// Default matches the service-wide default of 100 requests per minute.
var Default = Config{Requests: 100, Window: time.Minute}

// New picks the Redis backend when a client is supplied and the in-process
// backend otherwise. Build it once and share it.
func New(cfg Config, client *redis.Client) Limiter {
	if client != nil {
		return NewRedis(client, cfg)
	}
	return NewMemory(cfg)
}
