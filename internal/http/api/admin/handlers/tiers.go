package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tierIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// TierHandler manages admin CRUD endpoints for tiers.
type TierHandler struct {
	db *gorm.DB // Database handle for tier records.
}

// NewTierHandler constructs a tier handler.
func NewTierHandler(db *gorm.DB) *TierHandler {
	return &TierHandler{db: db}
}

// normalizeTierFeatures validates the features payload as a list of strings.
func normalizeTierFeatures(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON([]byte("[]")), nil
	}
	var features []string
	if errUnmarshal := json.Unmarshal(raw, &features); errUnmarshal != nil {
		return nil, errors.New("invalid features")
	}
	cleaned := make([]string, 0, len(features))
	for _, feature := range features {
		if feature = strings.TrimSpace(feature); feature != "" {
			cleaned = append(cleaned, feature)
		}
	}
	out, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(out), nil
}

// createTierRequest captures the payload for creating a tier.
type createTierRequest struct {
	ID                     string          `json:"id"`                        // Stable tier identifier.
	Name                   string          `json:"name"`                      // Display name.
	Description            string          `json:"description"`               // Display description.
	Features               json.RawMessage `json:"features"`                  // Feature list.
	MonthlyQuota           int64           `json:"monthly_quota"`             // Shared generations per period.
	RateLimit              int             `json:"rate_limit"`                // Generations per window.
	ProviderProductID      string          `json:"provider_product_id"`       // Billing product ID.
	ProviderMonthlyPriceID string          `json:"provider_monthly_price_id"` // Billing monthly price ID.
	ProviderYearlyPriceID  string          `json:"provider_yearly_price_id"`  // Billing yearly price ID.
	MonthlyPriceCents      int64           `json:"monthly_price_cents"`       // Cached monthly price.
	YearlyPriceCents       int64           `json:"yearly_price_cents"`        // Cached yearly price.
	Currency               string          `json:"currency"`                  // Price currency.
	SortOrder              int             `json:"sort_order"`                // Display order.
	IsEnabled              *bool           `json:"is_enabled"`                // Optional active flag.
}

// Create validates input and inserts a new tier.
func (h *TierHandler) Create(c *gin.Context) {
	var body createTierRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	id := strings.ToLower(strings.TrimSpace(body.ID))
	if !tierIDPattern.MatchString(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if body.MonthlyQuota < 0 || body.RateLimit < 0 || body.MonthlyPriceCents < 0 || body.YearlyPriceCents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "values must not be negative"})
		return
	}

	isEnabled := true
	if body.IsEnabled != nil {
		isEnabled = *body.IsEnabled
	}

	features, errFeatures := normalizeTierFeatures(body.Features)
	if errFeatures != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
		return
	}

	currency := strings.ToLower(strings.TrimSpace(body.Currency))
	if currency == "" {
		currency = "usd"
	}

	ctx := c.Request.Context()
	var existing int64
	if errCount := h.db.WithContext(ctx).Model(&models.Tier{}).Where("id = ?", id).Count(&existing).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "tier already exists"})
		return
	}

	now := time.Now().UTC()
	tier := models.Tier{
		ID:                     id,
		Name:                   strings.TrimSpace(body.Name),
		Description:            body.Description,
		Features:               features,
		MonthlyQuota:           body.MonthlyQuota,
		RateLimit:              body.RateLimit,
		ProviderProductID:      strings.TrimSpace(body.ProviderProductID),
		ProviderMonthlyPriceID: strings.TrimSpace(body.ProviderMonthlyPriceID),
		ProviderYearlyPriceID:  strings.TrimSpace(body.ProviderYearlyPriceID),
		MonthlyPriceCents:      body.MonthlyPriceCents,
		YearlyPriceCents:       body.YearlyPriceCents,
		Currency:               currency,
		SortOrder:              body.SortOrder,
		IsEnabled:              isEnabled,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if errCreate := h.db.WithContext(ctx).Create(&tier).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create tier failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatTier(&tier))
}

// List returns all tiers, optionally filtered by enabled flag.
func (h *TierHandler) List(c *gin.Context) {
	enabledQ := strings.TrimSpace(c.Query("is_enabled"))

	q := h.db.WithContext(c.Request.Context()).Model(&models.Tier{})
	if enabledQ != "" {
		if enabledQ == "true" || enabledQ == "1" {
			q = q.Where("is_enabled = ?", true)
		} else if enabledQ == "false" || enabledQ == "0" {
			q = q.Where("is_enabled = ?", false)
		}
	}

	var rows []models.Tier
	if errFind := q.Order("sort_order ASC, created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tiers failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatTier(&row))
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

// Get fetches a tier by ID.
func (h *TierHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var tier models.Tier
	if errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", id).First(&tier).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatTier(&tier))
}

// updateTierRequest captures optional fields for tier updates.
type updateTierRequest struct {
	Name                   *string          `json:"name"`                      // Optional name update.
	Description            *string          `json:"description"`               // Optional description.
	Features               *json.RawMessage `json:"features"`                  // Optional feature list.
	MonthlyQuota           *int64           `json:"monthly_quota"`             // Optional quota.
	RateLimit              *int             `json:"rate_limit"`                // Optional rate limit.
	ProviderProductID      *string          `json:"provider_product_id"`       // Optional billing product ID.
	ProviderMonthlyPriceID *string          `json:"provider_monthly_price_id"` // Optional monthly price ID.
	ProviderYearlyPriceID  *string          `json:"provider_yearly_price_id"`  // Optional yearly price ID.
	MonthlyPriceCents      *int64           `json:"monthly_price_cents"`       // Optional monthly price.
	YearlyPriceCents       *int64           `json:"yearly_price_cents"`        // Optional yearly price.
	Currency               *string          `json:"currency"`                  // Optional currency.
	SortOrder              *int             `json:"sort_order"`                // Optional display order.
	IsEnabled              *bool            `json:"is_enabled"`                // Optional active flag.
}

// Update validates and applies tier field updates.
func (h *TierHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var body updateTierRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var existing models.Tier
	if errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", id).First(&existing).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}

	if body.Name != nil {
		n := strings.TrimSpace(*body.Name)
		if n == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = n
	}
	if body.Description != nil {
		updates["description"] = *body.Description
	}
	if body.Features != nil {
		features, errFeatures := normalizeTierFeatures(*body.Features)
		if errFeatures != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
			return
		}
		updates["features"] = features
	}
	if body.MonthlyQuota != nil {
		if *body.MonthlyQuota < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "monthly_quota must not be negative"})
			return
		}
		updates["monthly_quota"] = *body.MonthlyQuota
	}
	if body.RateLimit != nil {
		if *body.RateLimit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit must not be negative"})
			return
		}
		updates["rate_limit"] = *body.RateLimit
	}
	if body.ProviderProductID != nil {
		updates["provider_product_id"] = strings.TrimSpace(*body.ProviderProductID)
	}
	if body.ProviderMonthlyPriceID != nil {
		updates["provider_monthly_price_id"] = strings.TrimSpace(*body.ProviderMonthlyPriceID)
	}
	if body.ProviderYearlyPriceID != nil {
		updates["provider_yearly_price_id"] = strings.TrimSpace(*body.ProviderYearlyPriceID)
	}
	if body.MonthlyPriceCents != nil {
		updates["monthly_price_cents"] = *body.MonthlyPriceCents
	}
	if body.YearlyPriceCents != nil {
		updates["yearly_price_cents"] = *body.YearlyPriceCents
	}
	if body.Currency != nil {
		updates["currency"] = strings.ToLower(strings.TrimSpace(*body.Currency))
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if body.IsEnabled != nil {
		if !*body.IsEnabled && existing.ID == models.FreeTierID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "free tier cannot be disabled"})
			return
		}
		updates["is_enabled"] = *body.IsEnabled
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Tier{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a tier no subscription references.
func (h *TierHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == models.FreeTierID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "free tier cannot be deleted"})
		return
	}
	ctx := c.Request.Context()

	var inUse int64
	if errCount := h.db.WithContext(ctx).Model(&models.Subscription{}).Where("tier_id = ?", id).Count(&inUse).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if inUse > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "tier is in use"})
		return
	}

	res := h.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Tier{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// formatTier converts a tier model into a response payload.
func (h *TierHandler) formatTier(t *models.Tier) gin.H {
	return gin.H{
		"id":                        t.ID,
		"name":                      t.Name,
		"description":               t.Description,
		"features":                  t.Features,
		"monthly_quota":             t.MonthlyQuota,
		"rate_limit":                t.RateLimit,
		"provider_product_id":       t.ProviderProductID,
		"provider_monthly_price_id": t.ProviderMonthlyPriceID,
		"provider_yearly_price_id":  t.ProviderYearlyPriceID,
		"monthly_price_cents":       t.MonthlyPriceCents,
		"yearly_price_cents":        t.YearlyPriceCents,
		"currency":                  t.Currency,
		"sort_order":                t.SortOrder,
		"is_enabled":                t.IsEnabled,
		"created_at":                t.CreatedAt,
		"updated_at":                t.UpdatedAt,
	}
}
