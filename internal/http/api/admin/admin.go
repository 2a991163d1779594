package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/config"
	handlers "github.com/promptcraft/promptcraft/internal/http/api/admin/handlers"
	"github.com/promptcraft/promptcraft/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AdminChecker reports whether an identity subject may use the admin API.
type AdminChecker func(subject string) bool

// RegisterAdminRoutes registers the health route and the /v0/admin routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, isAdmin AdminChecker, cache handlers.CatalogInvalidator) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(jwtCfg, isAdmin))

	tierHandler := handlers.NewTierHandler(db)
	authed.POST("/tiers", tierHandler.Create)
	authed.GET("/tiers", tierHandler.List)
	authed.GET("/tiers/:id", tierHandler.Get)
	authed.PUT("/tiers/:id", tierHandler.Update)
	authed.DELETE("/tiers/:id", tierHandler.Delete)

	catalogHandler := handlers.NewCatalogHandler(db, cache)
	authed.GET("/models", catalogHandler.ListModels)
	authed.POST("/models/:id/enable", catalogHandler.EnableModel)
	authed.POST("/models/:id/disable", catalogHandler.DisableModel)
	authed.POST("/templates/:id/enable", catalogHandler.EnableTemplate)
	authed.POST("/templates/:id/disable", catalogHandler.DisableTemplate)
}

// adminAuthMiddleware validates the identity token and requires an admin subject.
func adminAuthMiddleware(jwtCfg config.JWTConfig, isAdmin AdminChecker) gin.HandlerFunc {
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
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if isAdmin == nil || !isAdmin(claims.Subject) {
			log.WithField("subject", claims.Subject).Warn("admin: access denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Set("adminSubject", claims.Subject)
		c.Next()
	}
}
