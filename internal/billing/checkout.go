package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft/internal/config"
	"github.com/promptcraft/promptcraft/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUnknownPrice is returned for a checkout price no enabled tier offers.
	ErrUnknownPrice = errors.New("billing: price is not offered by any tier")
	// ErrNoCustomer is returned when a portal session is requested before checkout.
	ErrNoCustomer = errors.New("billing: no billing customer for user")
)

// CheckoutService creates hosted checkout and portal sessions.
type CheckoutService struct {
	db      *gorm.DB
	gateway Gateway
	cfg     config.StripeConfig
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(db *gorm.DB, gateway Gateway, cfg config.StripeConfig) *CheckoutService {
	return &CheckoutService{db: db, gateway: gateway, cfg: cfg}
}

// Checkout returns the URL of a subscription checkout session for priceID,
// creating the billing customer on first use.
func (s *CheckoutService) Checkout(ctx context.Context, userID, email, priceID string) (string, error) {
	if s == nil || s.gateway == nil {
		return "", ErrGatewayDisabled
	}
	priceID = strings.TrimSpace(priceID)
	tier, found, errTier := TierByPrice(ctx, s.db, priceID)
	if errTier != nil {
		return "", errTier
	}
	if !found || !tier.IsEnabled {
		return "", ErrUnknownPrice
	}

	customerID, errCustomer := s.ensureCustomer(ctx, userID, email)
	if errCustomer != nil {
		return "", errCustomer
	}
	return s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		UserID:     userID,
		Email:      email,
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
}

// Portal returns the URL of a billing portal session for the user's customer.
func (s *CheckoutService) Portal(ctx context.Context, userID string) (string, error) {
	if s == nil || s.gateway == nil {
		return "", ErrGatewayDisabled
	}
	var sub models.Subscription
	errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) || (errFind == nil && sub.ProviderCustomerID == "") {
		return "", ErrNoCustomer
	}
	if errFind != nil {
		return "", fmt.Errorf("billing: load subscription: %w", errFind)
	}
	return s.gateway.CreatePortalSession(ctx, sub.ProviderCustomerID, s.cfg.PortalReturnURL)
}

func (s *CheckoutService) ensureCustomer(ctx context.Context, userID, email string) (string, error) {
	db := s.db.WithContext(ctx)
	var sub models.Subscription
	errFind := db.Where("user_id = ?", userID).First(&sub).Error
	if errFind == nil && sub.ProviderCustomerID != "" {
		return sub.ProviderCustomerID, nil
	}
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("billing: load subscription: %w", errFind)
	}

	customerID, errCreate := s.gateway.CreateCustomer(ctx, userID, email)
	if errCreate != nil {
		return "", errCreate
	}
	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	row := models.Subscription{
		UserID:             userID,
		TierID:             models.FreeTierID,
		Status:             models.SubscriptionStatusActive,
		ProviderCustomerID: customerID,
		PeriodStart:        &now,
		PeriodEnd:          &periodEnd,
	}
	errSave := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"provider_customer_id": customerID, "updated_at": now}),
	}).Create(&row).Error
	if errSave != nil {
		log.WithError(errSave).WithField("user_id", userID).Warn("billing: failed to store customer id")
	}
	return customerID, nil
}
