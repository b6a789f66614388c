package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// RateLimiter enforces a fixed-window per-IP request cap backed by Redis so
// the limit holds across replicas. A Redis failure fails open: the gateway
// keeps serving clinicians rather than refusing them over a cache outage.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *logging.Logger
}

// NewRateLimiter allows limit requests per window per client IP.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		logger: logger.Component("ratelimit"),
	}
}

// Allow reports whether the request from ip is within the limit.
func (rl *RateLimiter) Allow(ctx context.Context, ip string) bool {
	if rl == nil || rl.rdb == nil {
		return true
	}

	key := fmt.Sprintf("ratelimit:%s:%d", ip, time.Now().Unix()/int64(rl.window.Seconds()))

	pipe := rl.rdb.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn("rate limit check failed, allowing request", "error", err)
		return true
	}
	return count.Val() <= int64(rl.limit)
}

// RateLimit rejects requests exceeding the limiter with 429 Too Many
// Requests.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !rl.Allow(r.Context(), ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
