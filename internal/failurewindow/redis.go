// Package failurewindow backs the circuit breaker's rolling
// downstream-failure count with a Redis sorted set, so the count can in
// principle be shared across replicas of this service without changing
// the single-process breaker semantics the design assumes. Grounded on
// the teacher's sliding-window rate limiter
// (internal/infrastructure/redis/ratelimiter.go), which prunes a sorted
// set by score and re-adds the current sample through a single Lua
// script for atomicity.
package failurewindow

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "breaker:failures:"

// recordScript prunes entries older than the window and records one new
// failure, atomically, the same way the teacher's rate limiter records
// one request per Lua invocation.
const recordScript = `
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local member = ARGV[3]
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	redis.call('ZADD', key, now, member)
	redis.call('EXPIRE', key, ttl)
	return redis.call('ZCARD', key)
`

// RedisWindow is a Redis-backed rolling failure counter for one named
// circuit (currently just the bulk-submission breaker).
type RedisWindow struct {
	client *redis.Client
	key    string
	window time.Duration
}

// New builds a RedisWindow scoped to name, counting failures in the
// trailing window duration.
func New(client *redis.Client, name string, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, key: keyPrefix + name, window: window}
}

// Record adds one failure at t and returns the pruned count including
// it, so callers can act on the same read the write produced.
func (w *RedisWindow) Record(ctx context.Context, t time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	windowStart := t.Add(-w.window).UnixMilli()
	member := fmt.Sprintf("%d:%d", t.UnixNano(), rand.Int63())
	ttl := int(w.window.Seconds()) + 1

	result, err := w.client.Eval(ctx, recordScript, []string{w.key}, windowStart, t.UnixMilli(), member, ttl).Result()
	if err != nil {
		return 0, fmt.Errorf("failurewindow: record: %w", err)
	}
	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("failurewindow: unexpected eval result type %T", result)
	}
	return int(count), nil
}

// Count prunes entries older than the window as of now and returns how
// many remain, without recording a new one.
func (w *RedisWindow) Count(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	windowStart := now.Add(-w.window).UnixMilli()
	if err := w.client.ZRemRangeByScore(ctx, w.key, "-inf", fmt.Sprintf("%d", windowStart)).Err(); err != nil {
		return 0, fmt.Errorf("failurewindow: prune: %w", err)
	}
	count, err := w.client.ZCard(ctx, w.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failurewindow: count: %w", err)
	}
	return int(count), nil
}

// Reset clears the window, used by tests and by the breaker when it
// closes after a successful probe.
func (w *RedisWindow) Reset(ctx context.Context) error {
	return w.client.Del(ctx, w.key).Err()
}
