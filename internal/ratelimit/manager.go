package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/promptcraft/promptcraft/internal/config"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	redisBreakerDuration = 30 * time.Second
	redisPingTimeout     = 2 * time.Second
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager enforces generation rate limits against Redis when configured and
// against process memory otherwise, or while Redis is unreachable.
type Manager struct {
	settings       SettingsProvider
	nowFn          func() time.Time
	memory         Limiter
	newRedisClient RedisClientFactory
	breaker        *gobreaker.CircuitBreaker[Result]

	mu    sync.Mutex
	redis *RedisLimiter
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(settings SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if settings == nil {
		settings = StaticSettings(SettingsFromConfig(config.RateLimitConfig{}))
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		settings:       settings,
		nowFn:          nowFn,
		memory:         NewMemoryLimiter(),
		newRedisClient: newRedisClient,
		breaker: gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
			Name:        "ratelimit:redis",
			MaxRequests: 1,
			Timeout:     redisBreakerDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 1
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if to == gobreaker.StateOpen {
					log.WithField("breaker", name).Warn("rate limit: redis unavailable, falling back to memory")
					return
				}
				log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Info("rate limit: redis breaker state changed")
			},
		}),
	}
}

// Allow counts one request for key against limit in the current window.
func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()
	cfg := m.settings()

	if cfg.RedisEnabled {
		result, errRedis := m.breaker.Execute(func() (Result, error) {
			limiter, errConnect := m.connect(ctx, cfg)
			if errConnect != nil {
				return Result{}, errConnect
			}
			return limiter.Allow(ctx, key, limit, cfg.Window, now)
		})
		if errRedis == nil {
			return result, nil
		}
		if !errors.Is(errRedis, gobreaker.ErrOpenState) && !errors.Is(errRedis, gobreaker.ErrTooManyRequests) {
			log.WithError(errRedis).Debug("rate limit: redis check failed")
		}
	}
	return m.memory.Allow(ctx, key, limit, cfg.Window, now)
}

// connect returns the Redis limiter, dialing it on first use.
func (m *Manager) connect(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil {
		return m.redis, nil
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = NewRedisLimiter(client, cfg.RedisPrefix)
	return m.redis, nil
}

// Close releases the Redis client, if one was opened.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		return nil
	}
	errClose := m.redis.client.Close()
	m.redis = nil
	return errClose
}
