// Package ratelimit implements a fixed-window request limiter shared between
// replicas through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// DefaultPrefix namespaces limiter keys when none is configured.
const DefaultPrefix = "admission:rate_limit"

// RedisLimiter counts requests per scope and subject in Redis. A limiter
// without a client allows everything.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter. client may be nil.
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = DefaultPrefix
	}
	return &RedisLimiter{client: client, prefix: trimmed}
}

// Enabled reports whether the limiter has a Redis client.
func (r *RedisLimiter) Enabled() bool {
	return r != nil && r.client != nil
}

// ConsumeRateLimit records one request for subject within scope and returns
// the window's running count and the seconds until the window resets.
func (r *RedisLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if !r.Enabled() || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	windowMs := max(window.Milliseconds(), 1000)

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	raw, err := fixedWindowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	current, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(current), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := max(int(math.Ceil(float64(ttlMs)/1000.0)), 1)
	return int(current), retryAfter, nil
}

// Connect parses url and pings the server. It returns nil when url is empty
// or Redis is unreachable, which disables rate limiting.
func Connect(ctx context.Context, url string, logger *slog.Logger) *redis.Client {
	if strings.TrimSpace(url) == "" {
		logger.Warn("redis url missing; rate limiting disabled", "component", "bootstrap", "env", "REDIS_URL")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("redis url parse failed; rate limiting disabled", "component", "bootstrap", "error", err)
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; rate limiting disabled", "component", "bootstrap", "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", "component", "bootstrap")
	return client
}
