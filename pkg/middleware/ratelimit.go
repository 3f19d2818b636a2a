package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/YogevSaadon/Qode/pkg/logger"
	"github.com/YogevSaadon/Qode/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	rateLimitKeyPrefix = "qode:ratelimit:"
	rateLimitScript    = "ratelimit_incr"
)

// fixedWindowScript increments the counter and starts the window on first hit.
// Returns {count, remaining ttl in ms}.
const fixedWindowScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {current, ttl}
`

// Limiter counts hits per key within a fixed window
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// ScriptRunner is the subset of the Redis wrapper the limiter needs
type ScriptRunner interface {
	EvalWithFallback(ctx context.Context, name, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLimiter shares its counters across API instances
type RedisLimiter struct {
	runner ScriptRunner
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit hits per window for each key
func NewRedisLimiter(runner ScriptRunner, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{runner: runner, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	vals, err := l.runner.EvalWithFallback(ctx, rateLimitScript, fixedWindowScript,
		[]string{rateLimitKeyPrefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return true, 0, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(vals) != 2 {
		return true, 0, fmt.Errorf("unexpected rate limit reply: %v", vals)
	}

	if vals[0] <= l.limit {
		return true, 0, nil
	}
	retryAfter := time.Duration(vals[1]) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = l.window
	}
	return false, retryAfter, nil
}

// LocalLimiter keeps counters in process memory, for single-instance runs
type LocalLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*localWindow
}

type localWindow struct {
	count   int
	resetAt time.Time
}

// NewLocalLimiter allows limit hits per window for each key
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*localWindow),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		// Expired windows are swept lazily here to bound the map.
		if len(l.windows) > 10000 {
			for k, old := range l.windows {
				if !now.Before(old.resetAt) {
					delete(l.windows, k)
				}
			}
		}
		w = &localWindow{resetAt: now.Add(l.window)}
		l.windows[key] = w
	}

	w.count++
	if w.count <= l.limit {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

// RateLimit rejects clients over the limit with 429. Limiter errors fail open.
func RateLimit(limiter Limiter, scope string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.WarnContext(c.Request.Context(), "Rate limiter unavailable",
				zap.String("key", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			response.TooManyRequests(c, "Too many requests, slow down")
			c.Abort()
			return
		}

		c.Next()
	}
}
