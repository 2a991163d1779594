package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/promptcraft/promptcraft/internal/quota"
	log "github.com/sirupsen/logrus"
)

// UsageLoader returns a user's tier and usage counter.
type UsageLoader interface {
	LoadUsage(ctx context.Context, userID string) (quota.Usage, error)
}

// SubscriptionHandler serves the current user's subscription summary.
type SubscriptionHandler struct {
	loader UsageLoader
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(loader UsageLoader) *SubscriptionHandler {
	return &SubscriptionHandler{loader: loader}
}

// Get returns tier, usage and billing period for the current user.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	current, errLoad := h.loader.LoadUsage(c.Request.Context(), userID)
	if errLoad != nil {
		log.WithError(errLoad).WithField("user_id", userID).Error("subscription: load usage failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load subscription failed"})
		return
	}

	out := gin.H{
		"tier_id":              current.Tier.ID,
		"tier_name":            current.Tier.Name,
		"monthly_quota":        current.Tier.MonthlyQuota,
		"usage_count":          current.Used,
		"remaining":            current.Remaining(),
		"status":               models.SubscriptionStatusActive,
		"period_start":         nil,
		"period_end":           nil,
		"cancel_at_period_end": false,
		"has_billing_account":  false,
	}
	if sub := current.Subscription; sub != nil {
		out["status"] = sub.Status
		out["period_start"] = sub.PeriodStart
		out["period_end"] = sub.PeriodEnd
		out["cancel_at_period_end"] = sub.CancelAtPeriodEnd
		out["has_billing_account"] = sub.ProviderCustomerID != ""
	}
	c.JSON(http.StatusOK, out)
}
