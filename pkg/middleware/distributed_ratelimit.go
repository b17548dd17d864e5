package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window counter shared by every instance through
// Redis. Burst is added to the per-minute allowance.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a RedisLimiter. An empty prefix means "ratelimit".
func NewRedisLimiter(client *redis.Client, cfg RateLimitConfig, prefix string) *RedisLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRateLimitConfig().RequestsPerMinute
	}
	if cfg.Burst < 0 {
		cfg.Burst = 0
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		redis:  client,
		limit:  int64(cfg.RequestsPerMinute + cfg.Burst),
		window: time.Minute,
		prefix: prefix,
	}
}

// Allow increments key's counter for the current window. On a Redis error
// the request is allowed and the error returned.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("redis rate limit: %w", err)
	}

	// A counter without expiry starts a new window.
	retryAfter := ttl.Val()
	if retryAfter < 0 {
		if err := l.redis.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return true, 0, fmt.Errorf("redis rate limit: %w", err)
		}
		retryAfter = l.window
	}

	if incr.Val() <= l.limit {
		return true, 0, nil
	}

	if retryAfter <= 0 {
		retryAfter = l.window
	}
	return false, retryAfter, nil
}
