package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iliyamo/ticketing-marketplace/internal/config"
)

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	local until_next = interval_ms - (now_ms - last_refill)
	if until_next < 0 then until_next = 0 end
	retry_after_ms = until_next
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// verdict is the outcome of one bucket check.
type verdict struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

// NewTokenBucket limits requests per key.  With Redis the bucket is shared
// by every API instance; when Redis is missing or errors, an in-process
// limiter with the same capacity and refill rate takes over.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return passthrough
	}
	local := newLocalBuckets(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			v, err := redisBucket(c, cfg, rdb, key)
			if err != nil {
				if cfg.Debug {
					log.WithError(err).WithField("key", key).Warn("rate limit redis unavailable, using local bucket")
				}
				v = local.take(key)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !v.allowed {
				secs := int(math.Ceil(v.retry.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func redisBucket(c echo.Context, cfg config.RateLimitConfig, rdb *redis.Client, key string) (verdict, error) {
	if rdb == nil {
		return verdict{}, redis.ErrClosed
	}
	vals, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
		time.Now().UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return verdict{}, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return verdict{}, fmt.Errorf("unexpected script result %#v", vals)
	}
	return verdict{
		allowed:   asInt64(arr[0]) == 1,
		remaining: asInt64(arr[1]),
		retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

// localBuckets keeps one rate.Limiter per key.  Entries idle longer than
// the configured TTL are dropped on the next sweep.
type localBuckets struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	buckets   map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
	return &localBuckets{
		limit:     rate.Limit(cfg.PerSecond()),
		burst:     cfg.Capacity,
		ttl:       cfg.TTL,
		buckets:   make(map[string]*localBucket),
		lastSweep: time.Now(),
	}
}

func (l *localBuckets) take(key string) verdict {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return verdict{allowed: false, retry: delay}
	}
	remaining := int64(b.lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return verdict{allowed: true, remaining: remaining}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := "anon"
	if id := UserID(c); id != 0 {
		uid = strconv.FormatUint(id, 10)
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
