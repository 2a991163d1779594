package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if window <= 0 {
		window = defaultWindow
	}
	start := windowStart(now, window)
	reset := time.Unix(0, start).Add(window).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: start}
		l.counters[key] = entry
	}
	if entry.window != start {
		entry.window = start
		entry.count = 0
		l.evictExpired(start)
	}
	if entry.count >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - entry.count, Reset: reset}, nil
}

// evictExpired drops counters from earlier windows. Callers hold l.mu.
func (l *MemoryLimiter) evictExpired(current int64) {
	for key, entry := range l.counters {
		if entry.window < current {
			delete(l.counters, key)
		}
	}
}

// windowStart truncates now to the start of its fixed window, in Unix nanoseconds.
func windowStart(now time.Time, window time.Duration) int64 {
	size := int64(window)
	return now.UnixNano() / size * size
}
