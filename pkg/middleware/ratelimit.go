package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/pitchdesk/pkg/httputil"
	"github.com/platinummonkey/pitchdesk/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per key
	RequestsPerMinute int
	// Burst is the number of requests allowed at once
	Burst int
	// MaxKeys bounds the number of tracked keys in memory
	MaxKeys int
}

// DefaultRateLimitConfig returns the login and registration limits
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		Burst:             5,
		MaxKeys:           10000,
	}
}

// Limiter decides whether a keyed request may proceed. retryAfter is a hint
// for denied requests.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// MemoryLimiter is a per-key token bucket held in process memory. Idle keys
// are evicted once their bucket would be full again.
type MemoryLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewMemoryLimiter creates a MemoryLimiter
func NewMemoryLimiter(cfg RateLimitConfig) *MemoryLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRateLimitConfig().RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultRateLimitConfig().MaxKeys
	}

	interval := time.Minute / time.Duration(cfg.RequestsPerMinute)
	idle := interval * time.Duration(cfg.Burst)
	if idle < time.Minute {
		idle = time.Minute
	}

	return &MemoryLimiter{
		limit:   rate.Every(interval),
		burst:   cfg.Burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](cfg.MaxKeys, nil, idle),
	}
}

// Allow takes a token from key's bucket
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle expiry.
	l.buckets.Add(key, b)

	now := time.Now()
	res := b.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute, nil
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0, nil
	}
	res.CancelAt(now)
	return false, delay, nil
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	return l.buckets.Len()
}

// KeyFunc derives the rate limit key from a request
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by caller address
func ByClientIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return "ip:" + httputil.ClientIP(r, trustProxy)
	}
}

// RateLimit rejects requests over the limit with 429 and a Retry-After
// header. Limiter errors are logged and the request is let through.
func RateLimit(limiter Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), k)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).WithField("key", k).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				secs := int(retryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				observability.FromContext(r.Context()).WithField("key", k).Info("Rate limit exceeded")
				httputil.WriteTooManyRequests(w, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
