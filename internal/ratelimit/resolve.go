package ratelimit

import (
	"context"
	"errors"
	"strings"

	"github.com/promptcraft/promptcraft/internal/models"
	"gorm.io/gorm"
)

// ResolveLimit resolves the effective generation rate limit: the user's tier
// limit when set, otherwise defaultLimit.
func ResolveLimit(ctx context.Context, db *gorm.DB, userID string, defaultLimit int) (Decision, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tierID, tierLimit, errTier := loadTierRateLimit(ctx, db, userID)
	if errTier != nil {
		return Decision{}, errTier
	}
	if tierLimit > 0 {
		return Decision{Limit: tierLimit, Scope: ScopeTier, TierID: tierID}, nil
	}
	if defaultLimit > 0 {
		return Decision{Limit: defaultLimit, Scope: ScopeDefault, TierID: tierID}, nil
	}
	return Decision{}, nil
}

// loadTierRateLimit reads the rate limit of the user's tier, falling back to
// the free tier for users without a subscription row.
func loadTierRateLimit(ctx context.Context, db *gorm.DB, userID string) (string, int, error) {
	if db == nil {
		return "", 0, nil
	}
	tierID := models.FreeTierID
	var sub models.Subscription
	errSub := db.WithContext(ctx).
		Model(&models.Subscription{}).
		Select("tier_id").
		Where("user_id = ?", userID).
		Take(&sub).Error
	switch {
	case errSub == nil:
		tierID = sub.TierID
	case !errors.Is(errSub, gorm.ErrRecordNotFound):
		return "", 0, errSub
	}

	var tier models.Tier
	if errFind := db.WithContext(ctx).
		Model(&models.Tier{}).
		Select("id", "rate_limit").
		Where("id = ?", tierID).
		Take(&tier).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return tierID, 0, nil
		}
		return "", 0, errFind
	}
	return tierID, tier.RateLimit, nil
}
