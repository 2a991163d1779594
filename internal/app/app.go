package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/billing"
	"github.com/promptcraft/promptcraft/internal/catalog"
	"github.com/promptcraft/promptcraft/internal/config"
	"github.com/promptcraft/promptcraft/internal/db"
	"github.com/promptcraft/promptcraft/internal/http/api/admin"
	"github.com/promptcraft/promptcraft/internal/http/api/front"
	"github.com/promptcraft/promptcraft/internal/metrics"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/promptcraft/promptcraft/internal/provider"
	"github.com/promptcraft/promptcraft/internal/quota"
	"github.com/promptcraft/promptcraft/internal/ratelimit"
	"github.com/promptcraft/promptcraft/internal/security"
	"github.com/promptcraft/promptcraft/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Migrate opens the database, runs migrations and seeds defaults.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	_, conn, err := open(cfg)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Rollover runs one usage rollover sweep.
func Rollover(ctx context.Context, cfg config.AppConfig) (billing.RolloverResult, error) {
	_, conn, err := open(cfg)
	if err != nil {
		return billing.RolloverResult{}, err
	}
	return billing.Rollover(ctx, conn, time.Now())
}

// RunServer boots the HTTP API with its background jobs and serves until ctx
// is done. A positive port overrides the configured one.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	serverCfg, conn, err := open(cfg)
	if err != nil {
		return err
	}
	if port > 0 {
		serverCfg.Port = port
	}
	configureLogging(serverCfg)

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	cipher, errCipher := security.NewCipher(serverCfg.EncryptionKey)
	if errCipher != nil {
		return errCipher
	}
	if cipher == nil {
		log.Warn("credentials encryption key not set, user API keys are stored unsealed")
	}

	shared, errShared := captureSharedCredentials(ctx, conn, serverCfg)
	if errShared != nil {
		return errShared
	}
	if shared.Len() == 0 {
		log.Warn("no shared provider credentials configured")
	}

	appMetrics := metrics.New(nil)
	modelCatalog := catalog.New(conn, serverCfg.Catalog.Size, serverCfg.Catalog.TTL)
	registry := provider.NewDefaultRegistry(serverCfg.Provider, appMetrics)
	resolver := quota.NewResolver(conn, shared, cipher)
	recorder := usage.NewRecorder(conn, appMetrics)

	var (
		source  billing.SubscriptionSource
		gateway billing.Gateway
	)
	if stripeClient := billing.NewStripeClient(serverCfg.Stripe.SecretKey, ""); stripeClient != nil {
		source, gateway = stripeClient, stripeClient
		billing.NewPriceSyncer(conn, stripeClient, serverCfg.Stripe.PriceSyncInterval).Start(ctx)
	} else {
		log.Warn("stripe secret key not set, checkout and subscription lookups are disabled")
	}
	if serverCfg.Stripe.WebhookSecret == "" {
		log.Warn("stripe webhook secret not set, every webhook delivery will be rejected")
	}
	reconciler := billing.NewReconciler(conn, source, serverCfg.Stripe.WebhookSecret,
		billing.ParseRenewalPolicy(serverCfg.Stripe.RenewalReset), appMetrics)
	checkout := billing.NewCheckoutService(conn, gateway, serverCfg.Stripe)

	limiter := ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(serverCfg.RateLimit)), nil, nil)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("close rate limiter")
		}
	}()

	if !serverCfg.Rollover.Disabled {
		if errStart := billing.NewRolloverScheduler(conn, serverCfg.Rollover.Schedule).Start(ctx); errStart != nil {
			return errStart
		}
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), appMetrics.Middleware())
	engine.GET("/metrics", gin.WrapH(appMetrics.Handler()))
	refresher := &catalogRefresher{catalog: modelCatalog, conn: conn, shared: shared, getenv: os.Getenv}
	admin.RegisterAdminRoutes(engine, conn, serverCfg.JWT, serverCfg.IsAdmin, refresher)
	front.RegisterFrontRoutes(engine, front.Deps{
		DB:               conn,
		JWT:              serverCfg.JWT,
		Catalog:          modelCatalog,
		Resolver:         resolver,
		Registry:         registry,
		Recorder:         recorder,
		Reconciler:       reconciler,
		Checkout:         checkout,
		Cipher:           cipher,
		Limiter:          limiter,
		DefaultRateLimit: serverCfg.RateLimit.Default,
		Observer:         appMetrics,
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", serverCfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return serve(ctx, server)
}

// serve runs server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		if errListen := server.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			errCh <- errListen
		}
		close(errCh)
	}()

	select {
	case errListen := <-errCh:
		return errListen
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

// open loads the config file and connects to the configured database.
func open(cfg config.AppConfig) (config.Config, *gorm.DB, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	if !config.ConfigExists(configPath) {
		log.WithField("path", configPath).Info("config file not found, using environment only")
	}
	serverCfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	dsn, err := serverCfg.DSN()
	if err != nil {
		return config.Config{}, nil, err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return config.Config{}, nil, err
	}
	return serverCfg, conn, nil
}

// captureSharedCredentials reads the credential names every model config
// refers to and captures their values from the config file and env.
func captureSharedCredentials(ctx context.Context, conn *gorm.DB, cfg config.Config) (*config.SharedCredentials, error) {
	names, err := credentialNames(ctx, conn)
	if err != nil {
		return nil, err
	}
	return config.CaptureSharedCredentials(cfg.SharedCredentials, names, os.Getenv), nil
}

func credentialNames(ctx context.Context, conn *gorm.DB) ([]string, error) {
	var names []string
	if errPluck := conn.WithContext(ctx).Model(&models.ModelConfig{}).
		Distinct("env_key").
		Pluck("env_key", &names).Error; errPluck != nil {
		return nil, fmt.Errorf("load credential names: %w", errPluck)
	}
	return names, nil
}

// catalogRefresher purges the catalog cache after admin changes and captures
// credentials for env names that model configs started referring to.
type catalogRefresher struct {
	catalog *catalog.Catalog
	conn    *gorm.DB
	shared  *config.SharedCredentials
	getenv  func(string) string
}

func (r *catalogRefresher) Invalidate() {
	r.catalog.Invalidate()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	names, err := credentialNames(ctx, r.conn)
	if err != nil {
		log.WithError(err).Warn("refresh shared credentials")
		return
	}
	if added := r.shared.Capture(names, r.getenv); added > 0 {
		log.WithField("added", added).Info("captured new shared credentials")
	}
}
