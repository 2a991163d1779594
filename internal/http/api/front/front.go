// Package front registers the user-facing API routes.
package front

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/billing"
	"github.com/promptcraft/promptcraft/internal/catalog"
	"github.com/promptcraft/promptcraft/internal/config"
	handlers "github.com/promptcraft/promptcraft/internal/http/api/front/handlers"
	"github.com/promptcraft/promptcraft/internal/provider"
	"github.com/promptcraft/promptcraft/internal/quota"
	"github.com/promptcraft/promptcraft/internal/ratelimit"
	"github.com/promptcraft/promptcraft/internal/security"
	"github.com/promptcraft/promptcraft/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RateLimiter admits generation requests per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (ratelimit.Result, error)
}

// Observer receives front-end request outcomes.
type Observer interface {
	handlers.GenerationObserver
	ObserveRateLimited()
}

// Deps bundles the services behind the front routes.
type Deps struct {
	DB               *gorm.DB
	JWT              config.JWTConfig
	Catalog          *catalog.Catalog
	Resolver         *quota.Resolver
	Registry         *provider.Registry
	Recorder         *usage.Recorder
	Reconciler       *billing.Reconciler
	Checkout         *billing.CheckoutService
	Cipher           *security.Cipher // Nil stores user keys unsealed.
	Limiter          RateLimiter
	DefaultRateLimit int
	Observer         Observer // Optional.
}

// RegisterFrontRoutes registers the public and authenticated /v1 routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	var generationObserver handlers.GenerationObserver
	if deps.Observer != nil {
		generationObserver = deps.Observer
	}

	v1 := r.Group("/v1")

	tierHandler := handlers.NewTierFrontHandler(deps.DB)
	v1.GET("/tiers", tierHandler.List)

	webhookHandler := handlers.NewWebhookHandler(deps.Reconciler)
	v1.POST("/webhooks/stripe", webhookHandler.Stripe)

	authed := v1.Group("")
	authed.Use(userAuthMiddleware(deps.JWT))

	subscriptionHandler := handlers.NewSubscriptionHandler(deps.Resolver)
	authed.GET("/subscription", subscriptionHandler.Get)

	catalogHandler := handlers.NewCatalogHandler(deps.Catalog)
	authed.GET("/models", catalogHandler.Models)
	authed.GET("/templates", catalogHandler.Templates)

	historyHandler := handlers.NewHistoryHandler(deps.DB)
	authed.GET("/prompts/history", historyHandler.List)

	generateHandler := handlers.NewGenerateHandler(deps.Catalog, deps.Resolver, deps.Registry, deps.Recorder, generationObserver)
	authed.POST("/prompts/generate",
		rateLimitMiddleware(deps.DB, deps.Limiter, deps.DefaultRateLimit, deps.Observer),
		generateHandler.Generate,
	)

	credentialHandler := handlers.NewCredentialHandler(deps.DB, deps.Cipher)
	authed.GET("/credentials", credentialHandler.List)
	authed.PUT("/credentials/:provider", credentialHandler.Put)
	authed.DELETE("/credentials/:provider", credentialHandler.Delete)

	billingHandler := handlers.NewBillingHandler(deps.Checkout)
	authed.POST("/billing/checkout", billingHandler.Checkout)
	authed.POST("/billing/portal", billingHandler.Portal)
}

// userAuthMiddleware verifies the identity provider bearer token.
func userAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg, token)
		if errJWT != nil {
			log.WithError(errJWT).Debug("front: rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(handlers.ContextUserID, claims.Subject)
		c.Set(handlers.ContextUserEmail, claims.Email)
		c.Next()
	}
}

// rateLimitMiddleware applies the per-user generation limit. Limiter errors
// let the request through.
func rateLimitMiddleware(db *gorm.DB, limiter RateLimiter, defaultLimit int, observer Observer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		userID := c.GetString(handlers.ContextUserID)
		ctx := c.Request.Context()

		decision, errResolve := ratelimit.ResolveLimit(ctx, db, userID, defaultLimit)
		if errResolve != nil {
			log.WithError(errResolve).WithField("user_id", userID).Warn("rate limit: resolve limit failed")
			c.Next()
			return
		}
		key := ratelimit.KeyForDecision(userID, decision)
		if key == "" {
			c.Next()
			return
		}

		result, errAllow := limiter.Allow(ctx, key, decision.Limit)
		if errAllow != nil {
			log.WithError(errAllow).WithField("user_id", userID).Warn("rate limit: check failed")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Reset.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		}
		if !result.Allowed {
			if observer != nil {
				observer.ObserveRateLimited()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
