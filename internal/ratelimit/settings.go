package ratelimit

import (
	"strings"
	"time"

	"github.com/promptcraft/promptcraft/internal/config"
)

const (
	defaultWindow      = time.Minute
	defaultRedisPrefix = "promptcraft:rl"
)

// SettingsConfig captures the effective rate limit settings.
type SettingsConfig struct {
	Limit         int
	Window        time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig normalizes the rate-limit config section.
func SettingsFromConfig(cfg config.RateLimitConfig) SettingsConfig {
	out := SettingsConfig{
		Limit:         cfg.Default,
		Window:        cfg.Window,
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword: strings.TrimSpace(cfg.Redis.Password),
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   strings.TrimSpace(cfg.Redis.Prefix),
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	if out.Window <= 0 {
		out.Window = defaultWindow
	}
	if out.RedisDB < 0 {
		out.RedisDB = 0
	}
	if out.RedisPrefix == "" {
		out.RedisPrefix = defaultRedisPrefix
	}
	return out
}

// StaticSettings returns a SettingsProvider that always yields cfg.
func StaticSettings(cfg SettingsConfig) SettingsProvider {
	return func() SettingsConfig { return cfg }
}
