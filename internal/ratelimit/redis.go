package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts requests per fixed window in Redis so that every
// server instance shares the same budget.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow increments the window counter for key and reports whether it is still
// within limit. Window keys expire after two windows.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if l == nil || l.client == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if window <= 0 {
		window = defaultWindow
	}
	start := windowStart(now, window)
	reset := time.Unix(0, start).Add(window).UTC()
	windowKey := l.windowKey(key, start)
	ttl := 2 * window
	if ttl < 2*time.Second {
		ttl = 2 * time.Second
	}

	var incr *redis.IntCmd
	if _, errPipe := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, ttl)
		return nil
	}); errPipe != nil {
		return Result{}, fmt.Errorf("rate limit redis: %w", errPipe)
	}

	count := int(incr.Val())
	if count > limit {
		return Result{Allowed: false, Limit: limit, Reset: reset}, nil
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - count, Reset: reset}, nil
}

func (l *RedisLimiter) windowKey(key string, start int64) string {
	seconds := strconv.FormatInt(start/int64(time.Second), 10)
	if l.prefix == "" {
		return key + ":" + seconds
	}
	return l.prefix + ":" + key + ":" + seconds
}
