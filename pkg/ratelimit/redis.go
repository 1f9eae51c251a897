package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/starter/pkg/idx"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ratelimit:"

// slidingWindowScript prunes, records speculatively, counts and rolls the
// record back when the limit is exceeded, all in one atomic call.
//
// Returns {allowed, remaining, reset_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local reset_ms = window_ms
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest > 0 then
	reset_ms = window_ms - (now - tonumber(oldest[2]))
end

redis.call('ZADD', key, now, member)
local count = redis.call('ZCARD', key)
redis.call('PEXPIRE', key, window_ms)

if count > limit then
	redis.call('ZREM', key, member)
	return {0, 0, reset_ms}
end

return {1, limit - count, reset_ms}
`)

// Redis stores each key's window in a sorted set so every instance sharing
// the server shares one limit.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, cfg Config) *Redis {
	return &Redis{
		client: client,
		cfg:    cfg,
		prefix: defaultRedisPrefix,
		now:    time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (Result, error) {
	now := r.now()
	windowStart := now.Add(-r.cfg.Window)

	raw, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		r.cfg.Requests,
		r.cfg.Window.Milliseconds(),
		idx.NewAt(now).String(),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit: allow check failed: %w", err)
	}

	arr, ok := raw.([]any)
	if !ok || len(arr) != 3 {
		return Result{}, fmt.Errorf("redis rate limit: unexpected result %T", raw)
	}

	var vals [3]int64
	for i, v := range arr {
		n, ok := v.(int64)
		if !ok {
			return Result{}, fmt.Errorf("redis rate limit: unexpected element %T", v)
		}
		vals[i] = n
	}

	return Result{
		Allowed:    vals[0] == 1,
		Limit:      r.cfg.Requests,
		Remaining:  int(vals[1]),
		ResetAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
