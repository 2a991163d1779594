package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft/internal/models"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApplyProduct refreshes the cached display fields of the tier linked to
// product. A product carrying a tier_id metadata entry links an unlinked tier.
func ApplyProduct(ctx context.Context, db *gorm.DB, product *stripe.Product) (Outcome, error) {
	if product == nil || product.ID == "" {
		return OutcomeNoop, nil
	}
	tier, found, errFind := tierForProduct(ctx, db, product)
	if errFind != nil {
		return OutcomeNoop, errFind
	}
	if !found {
		log.WithField("product_id", product.ID).Info("billing: product not linked to a tier")
		return OutcomeNoop, nil
	}

	updates := map[string]any{
		"provider_product_id": product.ID,
		"updated_at":          time.Now().UTC(),
	}
	if name := strings.TrimSpace(product.Name); name != "" {
		updates["name"] = name
	}
	updates["description"] = strings.TrimSpace(product.Description)
	if features, ok := parseFeatures(product.Metadata[metadataFeatures]); ok {
		updates["features"] = features
	}
	if errUpdate := db.WithContext(ctx).Model(&models.Tier{}).
		Where("id = ?", tier.ID).
		Updates(updates).Error; errUpdate != nil {
		return OutcomeNoop, fmt.Errorf("billing: update tier %s from product: %w", tier.ID, errUpdate)
	}
	return OutcomeApplied, nil
}

// ApplyPrice caches a recurring price on the tier linked to its product.
// The interval decides whether the monthly or the yearly fields are written.
func ApplyPrice(ctx context.Context, db *gorm.DB, price *stripe.Price) (Outcome, error) {
	if price == nil || price.ID == "" || price.Product == nil || price.Product.ID == "" {
		return OutcomeNoop, nil
	}
	if price.Recurring == nil {
		return OutcomeIgnored, nil
	}
	var tier models.Tier
	errFind := db.WithContext(ctx).Where("provider_product_id = ?", price.Product.ID).First(&tier).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		log.WithFields(log.Fields{"price_id": price.ID, "product_id": price.Product.ID}).Info("billing: price for unlinked product")
		return OutcomeNoop, nil
	}
	if errFind != nil {
		return OutcomeNoop, fmt.Errorf("billing: lookup tier by product: %w", errFind)
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if currency := strings.TrimSpace(string(price.Currency)); currency != "" {
		updates["currency"] = strings.ToLower(currency)
	}
	switch price.Recurring.Interval {
	case stripe.PriceRecurringIntervalMonth:
		updates["provider_monthly_price_id"] = price.ID
		updates["monthly_price_cents"] = price.UnitAmount
	case stripe.PriceRecurringIntervalYear:
		updates["provider_yearly_price_id"] = price.ID
		updates["yearly_price_cents"] = price.UnitAmount
	default:
		return OutcomeIgnored, nil
	}
	if raw, ok := price.Metadata[metadataMonthlyQuota]; ok {
		quota, errParse := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if errParse != nil || quota < 0 {
			log.WithField("price_id", price.ID).Warnf("billing: ignoring invalid monthly_quota %q", raw)
		} else {
			updates["monthly_quota"] = quota
		}
	}
	if errUpdate := db.WithContext(ctx).Model(&models.Tier{}).
		Where("id = ?", tier.ID).
		Updates(updates).Error; errUpdate != nil {
		return OutcomeNoop, fmt.Errorf("billing: update tier %s from price: %w", tier.ID, errUpdate)
	}
	return OutcomeApplied, nil
}

func tierForProduct(ctx context.Context, db *gorm.DB, product *stripe.Product) (models.Tier, bool, error) {
	var tier models.Tier
	errFind := db.WithContext(ctx).Where("provider_product_id = ?", product.ID).First(&tier).Error
	if errFind == nil {
		return tier, true, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Tier{}, false, fmt.Errorf("billing: lookup tier by product: %w", errFind)
	}
	tierID := strings.TrimSpace(product.Metadata[metadataTierID])
	if tierID == "" {
		return models.Tier{}, false, nil
	}
	errFind = db.WithContext(ctx).Where("id = ?", tierID).First(&tier).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Tier{}, false, nil
	}
	if errFind != nil {
		return models.Tier{}, false, fmt.Errorf("billing: lookup tier %s: %w", tierID, errFind)
	}
	return tier, true, nil
}

// parseFeatures accepts a JSON array of strings.
func parseFeatures(raw string) (datatypes.JSON, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var features []string
	if err := json.Unmarshal([]byte(raw), &features); err != nil {
		return nil, false
	}
	out, err := json.Marshal(features)
	if err != nil {
		return nil, false
	}
	return datatypes.JSON(out), true
}
