package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/models"
	"gorm.io/gorm"
)

// TierFrontHandler serves the public pricing list.
type TierFrontHandler struct {
	db *gorm.DB
}

// NewTierFrontHandler constructs a TierFrontHandler.
func NewTierFrontHandler(db *gorm.DB) *TierFrontHandler {
	return &TierFrontHandler{db: db}
}

// List returns enabled tiers in display order.
func (h *TierFrontHandler) List(c *gin.Context) {
	var tiers []models.Tier
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, monthly_price_cents ASC").
		Find(&tiers).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tiers failed"})
		return
	}

	out := make([]gin.H, 0, len(tiers))
	for _, tier := range tiers {
		features := tier.Features
		if len(features) == 0 {
			features = []byte("[]")
		}
		out = append(out, gin.H{
			"id":                  tier.ID,
			"name":                tier.Name,
			"description":         tier.Description,
			"features":            features,
			"monthly_quota":       tier.MonthlyQuota,
			"monthly_price_cents": tier.MonthlyPriceCents,
			"yearly_price_cents":  tier.YearlyPriceCents,
			"currency":            tier.Currency,
			"monthly_price_id":    tier.ProviderMonthlyPriceID,
			"yearly_price_id":     tier.ProviderYearlyPriceID,
			"sort_order":          tier.SortOrder,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tiers": out})
}
