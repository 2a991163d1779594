package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/catalog"
	"github.com/promptcraft/promptcraft/internal/models"
)

// CatalogLister lists selectable models and templates.
type CatalogLister interface {
	ActiveModels(ctx context.Context) ([]models.ModelConfig, error)
	ListTemplates(ctx context.Context, filter catalog.TemplateFilter) ([]models.Template, error)
}

// CatalogHandler serves the model and template catalog.
type CatalogHandler struct {
	catalog CatalogLister
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(catalog CatalogLister) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Models lists active models. Endpoints and credential names stay server-side.
func (h *CatalogHandler) Models(c *gin.Context) {
	rows, errList := h.catalog.ActiveModels(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list models failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ModelID,
			"name":        row.Name,
			"provider":    row.Provider,
			"description": row.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// Templates lists active templates, filtered by the category and q query params.
func (h *CatalogHandler) Templates(c *gin.Context) {
	rows, errList := h.catalog.ListTemplates(c.Request.Context(), catalog.TemplateFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Query:    strings.TrimSpace(c.Query("q")),
	})
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list templates failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":             row.ID,
			"category":       row.Category,
			"name":           row.Name,
			"description":    row.Description,
			"structure":      row.Structure,
			"help_text":      row.HelpText,
			"default_params": row.DefaultParams,
			"param_schema":   row.ParamSchema,
		})
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}
