// Package catalog serves the active model configs and templates, caching
// single-entry lookups made on the generation path.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/db"
	"github.com/promptcraft/promptcraft/internal/models"
	"gorm.io/gorm"
)

const (
	defaultSize = 256
	defaultTTL  = 5 * time.Minute
)

// Catalog reads model configs and templates with a bounded, expiring cache.
type Catalog struct {
	db        *gorm.DB
	models    *expirable.LRU[string, models.ModelConfig]
	templates *expirable.LRU[string, models.Template]
}

// New constructs a Catalog. Non-positive size or ttl select the defaults.
func New(conn *gorm.DB, size int, ttl time.Duration) *Catalog {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Catalog{
		db:        conn,
		models:    expirable.NewLRU[string, models.ModelConfig](size, nil, ttl),
		templates: expirable.NewLRU[string, models.Template](size, nil, ttl),
	}
}

// Model returns the active model config for modelID. Unknown or disabled
// models yield *apperr.InvalidModelError.
func (c *Catalog) Model(ctx context.Context, modelID string) (models.ModelConfig, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return models.ModelConfig{}, &apperr.InvalidModelError{ModelID: modelID}
	}
	if cached, ok := c.models.Get(modelID); ok {
		return cached, nil
	}
	var row models.ModelConfig
	errFind := c.db.WithContext(ctx).
		Where("model_id = ? AND is_active = ?", modelID, true).
		Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.ModelConfig{}, &apperr.InvalidModelError{ModelID: modelID}
	}
	if errFind != nil {
		return models.ModelConfig{}, fmt.Errorf("catalog: load model %s: %w", modelID, errFind)
	}
	c.models.Add(modelID, row)
	return row, nil
}

// Template returns the active template with id. found is false when it does
// not exist or is disabled.
func (c *Catalog) Template(ctx context.Context, id string) (models.Template, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Template{}, false, nil
	}
	if cached, ok := c.templates.Get(id); ok {
		return cached, true, nil
	}
	var row models.Template
	errFind := c.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Template{}, false, nil
	}
	if errFind != nil {
		return models.Template{}, false, fmt.Errorf("catalog: load template %s: %w", id, errFind)
	}
	c.templates.Add(id, row)
	return row, true, nil
}

// ActiveModels lists selectable model configs ordered by provider and name.
func (c *Catalog) ActiveModels(ctx context.Context) ([]models.ModelConfig, error) {
	var rows []models.ModelConfig
	if errFind := c.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("provider ASC, name ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("catalog: list models: %w", errFind)
	}
	return rows, nil
}

// TemplateFilter narrows ListTemplates.
type TemplateFilter struct {
	Category string
	Query    string
}

// ListTemplates lists active templates, optionally filtered by category and a
// case-insensitive search over name and description.
func (c *Catalog) ListTemplates(ctx context.Context, filter TemplateFilter) ([]models.Template, error) {
	q := c.db.WithContext(ctx).Model(&models.Template{}).Where("is_active = ?", true)
	if category := strings.TrimSpace(filter.Category); category != "" {
		q = q.Where("category = ?", category)
	}
	if search := strings.TrimSpace(filter.Query); search != "" {
		pattern := db.NormalizeLikePattern(c.db, "%"+search+"%")
		q = q.Where(
			c.db.Where(db.CaseInsensitiveLikeExpr(c.db, "name"), pattern).
				Or(db.CaseInsensitiveLikeExpr(c.db, "description"), pattern),
		)
	}
	var rows []models.Template
	if errFind := q.Order("category ASC, name ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("catalog: list templates: %w", errFind)
	}
	return rows, nil
}

// Invalidate drops every cached entry.
func (c *Catalog) Invalidate() {
	c.models.Purge()
	c.templates.Purge()
}
