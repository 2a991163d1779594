package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/models"
	"gorm.io/gorm"
)

// CatalogInvalidator drops cached catalog entries.
type CatalogInvalidator interface {
	Invalidate()
}

// CatalogHandler toggles model configs and templates.
type CatalogHandler struct {
	db    *gorm.DB
	cache CatalogInvalidator
}

// NewCatalogHandler constructs a CatalogHandler. cache may be nil.
func NewCatalogHandler(db *gorm.DB, cache CatalogInvalidator) *CatalogHandler {
	return &CatalogHandler{db: db, cache: cache}
}

// ListModels returns every model config, including inactive ones.
func (h *CatalogHandler) ListModels(c *gin.Context) {
	var rows []models.ModelConfig
	if errFind := h.db.WithContext(c.Request.Context()).Order("provider ASC, name ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list models failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ID,
			"model_id":    row.ModelID,
			"name":        row.Name,
			"provider":    row.Provider,
			"description": row.Description,
			"endpoint":    row.Endpoint,
			"env_key":     row.EnvKey,
			"is_active":   row.IsActive,
			"updated_at":  row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// EnableModel marks a model config as active.
func (h *CatalogHandler) EnableModel(c *gin.Context) {
	h.setActive(c, &models.ModelConfig{}, "model_id", true)
}

// DisableModel marks a model config as inactive.
func (h *CatalogHandler) DisableModel(c *gin.Context) {
	h.setActive(c, &models.ModelConfig{}, "model_id", false)
}

// EnableTemplate marks a template as active.
func (h *CatalogHandler) EnableTemplate(c *gin.Context) {
	h.setActive(c, &models.Template{}, "id", true)
}

// DisableTemplate marks a template as inactive.
func (h *CatalogHandler) DisableTemplate(c *gin.Context) {
	h.setActive(c, &models.Template{}, "id", false)
}

// setActive toggles is_active on the row whose column matches the id param.
func (h *CatalogHandler) setActive(c *gin.Context, model any, column string, active bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	now := time.Now().UTC()
	res := h.db.WithContext(c.Request.Context()).Model(model).Where(column+" = ?", id).
		Updates(map[string]any{"is_active": active, "updated_at": now})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.cache != nil {
		h.cache.Invalidate()
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
