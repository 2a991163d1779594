package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath          = "CONFIG_PATH"
	EnvDBConnection        = "DB_CONNECTION"
	EnvJWTSecret           = "JWT_SECRET"
	EnvJWTIssuer           = "JWT_ISSUER"
	EnvJWTAudience         = "JWT_AUDIENCE"
	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvEncryptionKey       = "CREDENTIALS_ENCRYPTION_KEY"
	EnvRedisAddr           = "REDIS_ADDR"
	EnvPort                = "PORT"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
// A .env file in the working directory is applied first when present.
func LoadFromEnv() (AppConfig, error) {
	if errDotEnv := LoadDotEnv(".env"); errDotEnv != nil {
		return AppConfig{}, errDotEnv
	}
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// LoadDotEnv applies variables from a dotenv file without overriding the process environment.
func LoadDotEnv(path string) error {
	if errLoad := godotenv.Load(path); errLoad != nil {
		if errors.Is(errLoad, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load dotenv: %w", errLoad)
	}
	return nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ConfigExists reports whether a config file exists at the path.
func ConfigExists(configPath string) bool {
	info, err := os.Stat(configPath)
	return err == nil && !info.IsDir()
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds the identity provider token verification settings.
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// StripeConfig holds billing provider credentials and redirect URLs.
type StripeConfig struct {
	SecretKey         string        `yaml:"secret-key"`
	WebhookSecret     string        `yaml:"webhook-secret"`
	SuccessURL        string        `yaml:"success-url"`
	CancelURL         string        `yaml:"cancel-url"`
	PortalReturnURL   string        `yaml:"portal-return-url"`
	RenewalReset      string        `yaml:"renewal-reset"`
	PriceSyncInterval time.Duration `yaml:"price-sync-interval"`
}

// ProviderConfig bounds outbound model provider calls.
type ProviderConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	BreakerMaxFailures uint32        `yaml:"breaker-max-failures"`
	BreakerOpenTimeout time.Duration `yaml:"breaker-open-timeout"`
}

// RedisConfig holds the optional Redis backend for rate limiting.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds generation rate limit settings.
type RateLimitConfig struct {
	Default int           `yaml:"default"`
	Window  time.Duration `yaml:"window"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RolloverConfig schedules the usage period rollover sweep.
type RolloverConfig struct {
	Disabled bool   `yaml:"disabled"`
	Schedule string `yaml:"schedule"`
}

// CatalogConfig sizes the model/template cache.
type CatalogConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// Config is the full server configuration.
type Config struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Port      int    `yaml:"port"`
	GinMode   string `yaml:"gin-mode"`
	LogLevel  string `yaml:"log-level"`
	LogFormat string `yaml:"log-format"`

	JWT           JWTConfig `yaml:"jwt"`
	AdminSubjects []string  `yaml:"admin-subjects"`

	Stripe    StripeConfig    `yaml:"stripe"`
	Provider  ProviderConfig  `yaml:"provider"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Rollover  RolloverConfig  `yaml:"rollover"`
	Catalog   CatalogConfig   `yaml:"catalog"`

	EncryptionKey     string            `yaml:"credentials-encryption-key"`
	SharedCredentials map[string]string `yaml:"shared-credentials"`
}

const (
	defaultPort               = 8080
	defaultProviderTimeout    = 60 * time.Second
	defaultBreakerFailures    = 5
	defaultBreakerOpenTimeout = 30 * time.Second
	defaultRateLimitWindow    = time.Minute
	defaultRateLimitPrefix    = "promptcraft:rl"
	defaultRolloverSchedule   = "@every 15m"
	defaultCatalogSize        = 256
	defaultCatalogTTL         = 5 * time.Minute
	defaultPriceSyncInterval  = 6 * time.Hour
)

// Load reads the YAML config file (optional) and applies env overrides and defaults.
func Load(configPath string) (Config, error) {
	var cfg Config
	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !errors.Is(errRead, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// DSN returns the configured database DSN.
func (c Config) DSN() (string, error) {
	if dsn := strings.TrimSpace(c.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// IsAdmin reports whether the subject is listed in admin-subjects.
func (c Config) IsAdmin(subject string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false
	}
	for _, admin := range c.AdminSubjects {
		if strings.EqualFold(strings.TrimSpace(admin), subject) {
			return true
		}
	}
	return false
}

func applyEnv(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if issuer := strings.TrimSpace(os.Getenv(EnvJWTIssuer)); issuer != "" {
		cfg.JWT.Issuer = issuer
	}
	if audience := strings.TrimSpace(os.Getenv(EnvJWTAudience)); audience != "" {
		cfg.JWT.Audience = audience
	}
	if key := strings.TrimSpace(os.Getenv(EnvStripeSecretKey)); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(EnvStripeWebhookSecret)); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	if key := strings.TrimSpace(os.Getenv(EnvEncryptionKey)); key != "" {
		cfg.EncryptionKey = key
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.RateLimit.Redis.Addr = addr
		cfg.RateLimit.Redis.Enabled = true
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil && port > 0 {
			cfg.Port = port
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = defaultProviderTimeout
	}
	if cfg.Provider.BreakerMaxFailures == 0 {
		cfg.Provider.BreakerMaxFailures = defaultBreakerFailures
	}
	if cfg.Provider.BreakerOpenTimeout <= 0 {
		cfg.Provider.BreakerOpenTimeout = defaultBreakerOpenTimeout
	}
	if cfg.RateLimit.Default < 0 {
		cfg.RateLimit.Default = 0
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = defaultRateLimitWindow
	}
	if strings.TrimSpace(cfg.RateLimit.Redis.Prefix) == "" {
		cfg.RateLimit.Redis.Prefix = defaultRateLimitPrefix
	}
	if strings.TrimSpace(cfg.Rollover.Schedule) == "" {
		cfg.Rollover.Schedule = defaultRolloverSchedule
	}
	if cfg.Catalog.Size <= 0 {
		cfg.Catalog.Size = defaultCatalogSize
	}
	if cfg.Catalog.TTL <= 0 {
		cfg.Catalog.TTL = defaultCatalogTTL
	}
	if cfg.Stripe.PriceSyncInterval <= 0 {
		cfg.Stripe.PriceSyncInterval = defaultPriceSyncInterval
	}
	if cfg.SharedCredentials == nil {
		cfg.SharedCredentials = map[string]string{}
	}
}
