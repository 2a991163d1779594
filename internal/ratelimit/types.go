package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Scope indicates where the resolved limit came from.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeTier
	ScopeDefault
)

// Decision describes the resolved rate limit and scope.
type Decision struct {
	Limit  int
	Scope  Scope
	TierID string
}
