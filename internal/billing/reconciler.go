// Package billing keeps local tiers and subscriptions consistent with the
// billing provider: webhook reconciliation, checkout and portal sessions,
// periodic price sync and usage period rollover.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/promptcraft/promptcraft/internal/security"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

const (
	metadataUserID       = "user_id"
	metadataLegacyUserID = "supabase_user_id"
	metadataTierID       = "tier_id"
	metadataMonthlyQuota = "monthly_quota"
	metadataFeatures     = "features"
)

// Outcome describes what applying an event did.
type Outcome string

// Outcome values.
const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
	OutcomeIgnored Outcome = "ignored"
)

// Observer receives reconciled webhook outcomes.
type Observer interface {
	ObserveWebhook(eventType string, outcome string)
}

// Reconciler applies billing provider events to tiers and subscriptions.
type Reconciler struct {
	db       *gorm.DB
	source   SubscriptionSource
	secret   string
	policy   RenewalPolicy
	observer Observer
	now      func() time.Time
}

// NewReconciler constructs a Reconciler. source may be nil when the provider
// API key is not configured; checkout events then fail and are retried.
func NewReconciler(db *gorm.DB, source SubscriptionSource, webhookSecret string, policy RenewalPolicy, observer Observer) *Reconciler {
	return &Reconciler{
		db:       db,
		source:   source,
		secret:   strings.TrimSpace(webhookSecret),
		policy:   policy,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook verifies the payload signature and applies the event. No data
// is touched unless verification succeeds.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	event, errVerify := r.Verify(payload, signature)
	if errVerify != nil {
		return OutcomeIgnored, errVerify
	}
	outcome, errApply := r.Apply(ctx, event)
	if r.observer != nil {
		label := string(outcome)
		if errApply != nil {
			label = "error"
		}
		r.observer.ObserveWebhook(string(event.Type), label)
	}
	return outcome, errApply
}

// Verify checks the signature header against the configured webhook secret.
func (r *Reconciler) Verify(payload []byte, signature string) (stripe.Event, error) {
	if r.secret == "" {
		return stripe.Event{}, &apperr.InvalidSignatureError{Cause: errors.New("webhook secret not configured")}
	}
	event, errConstruct := webhook.ConstructEventWithOptions(payload, signature, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if errConstruct != nil {
		return stripe.Event{}, &apperr.InvalidSignatureError{Cause: errConstruct}
	}
	return event, nil
}

// Apply dispatches a verified event to its handler.
func (r *Reconciler) Apply(ctx context.Context, event stripe.Event) (Outcome, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		log.WithField("event_id", event.ID).Warn("billing: event without data")
		return OutcomeNoop, nil
	}
	entry := log.WithFields(log.Fields{"event_id": event.ID, "event_type": event.Type})

	var (
		outcome Outcome
		err     error
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if errDecode := json.Unmarshal(event.Data.Raw, &session); errDecode != nil {
			return OutcomeNoop, fmt.Errorf("billing: decode checkout session: %w", errDecode)
		}
		outcome, err = r.applyCheckout(ctx, entry, &session)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if errDecode := json.Unmarshal(event.Data.Raw, &sub); errDecode != nil {
			return OutcomeNoop, fmt.Errorf("billing: decode subscription: %w", errDecode)
		}
		outcome, err = r.applySubscriptionUpdated(ctx, entry, &sub)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if errDecode := json.Unmarshal(event.Data.Raw, &sub); errDecode != nil {
			return OutcomeNoop, fmt.Errorf("billing: decode subscription: %w", errDecode)
		}
		outcome, err = r.applySubscriptionDeleted(ctx, entry, &sub)
	case stripe.EventTypeProductCreated, stripe.EventTypeProductUpdated:
		var product stripe.Product
		if errDecode := json.Unmarshal(event.Data.Raw, &product); errDecode != nil {
			return OutcomeNoop, fmt.Errorf("billing: decode product: %w", errDecode)
		}
		outcome, err = ApplyProduct(ctx, r.db, &product)
	case stripe.EventTypePriceCreated, stripe.EventTypePriceUpdated:
		var price stripe.Price
		if errDecode := json.Unmarshal(event.Data.Raw, &price); errDecode != nil {
			return OutcomeNoop, fmt.Errorf("billing: decode price: %w", errDecode)
		}
		outcome, err = ApplyPrice(ctx, r.db, &price)
	default:
		entry.Debug("billing: unhandled event type")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return outcome, err
	}
	if outcome != OutcomeApplied {
		entry.WithField("outcome", outcome).Info("billing: event not applied")
	}
	return outcome, nil
}

func (r *Reconciler) applyCheckout(ctx context.Context, entry *log.Entry, session *stripe.CheckoutSession) (Outcome, error) {
	if session.Mode != "" && session.Mode != stripe.CheckoutSessionModeSubscription {
		return OutcomeIgnored, nil
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		entry.Warn("billing: checkout session without subscription")
		return OutcomeNoop, nil
	}
	if r.source == nil {
		return OutcomeNoop, ErrGatewayDisabled
	}
	sub, errGet := r.source.GetSubscription(ctx, session.Subscription.ID)
	if errGet != nil {
		return OutcomeNoop, errGet
	}

	userID := resolveUserID(session.ClientReferenceID, session.Metadata, sub.Metadata)
	if userID == "" {
		entry.WithField("subscription_id", sub.ID).Warn("billing: checkout without a valid user id")
		return OutcomeNoop, nil
	}
	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	return r.upsertForUser(ctx, entry.WithField("user_id", userID), userID, customerID, sub, models.SubscriptionStatusActive)
}

// upsertForUser links sub to the user's row with the given status. Usage starts
// over only when the provider subscription differs from the stored one.
func (r *Reconciler) upsertForUser(ctx context.Context, entry *log.Entry, userID, customerID string, sub *stripe.Subscription, status models.SubscriptionStatus) (Outcome, error) {
	tier, found, errTier := tierForSubscription(ctx, r.db, sub)
	if errTier != nil {
		return OutcomeNoop, errTier
	}
	if !found {
		entry.WithField("price_id", firstPriceID(sub)).Warn("billing: unmapped price")
		return OutcomeNoop, nil
	}
	if customerID == "" && sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	periodStart, periodEnd := subscriptionPeriod(sub)
	now := r.now()

	outcome := OutcomeApplied
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		errFind := tx.Where("user_id = ?", userID).First(&existing).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			row := models.Subscription{
				UserID:                 userID,
				TierID:                 tier.ID,
				Status:                 status,
				ProviderCustomerID:     customerID,
				ProviderSubscriptionID: sub.ID,
				PeriodStart:            periodStart,
				PeriodEnd:              periodEnd,
				CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
				UsageResetAt:           &now,
			}
			return tx.Create(&row).Error
		}
		if errFind != nil {
			return errFind
		}

		sameSubscription := existing.ProviderSubscriptionID == sub.ID
		if sameSubscription && !ValidTransition(existing.Status, status) {
			entry.WithFields(log.Fields{"from": existing.Status, "to": status}).Warn("billing: invalid status transition")
			outcome = OutcomeIgnored
			return nil
		}
		updates := map[string]any{
			"tier_id":                  tier.ID,
			"status":                   status,
			"provider_subscription_id": sub.ID,
			"period_start":             periodStart,
			"period_end":               periodEnd,
			"cancel_at_period_end":     sub.CancelAtPeriodEnd,
			"updated_at":               now,
		}
		if customerID != "" {
			updates["provider_customer_id"] = customerID
		}
		if !sameSubscription {
			updates["usage_count"] = 0
			updates["usage_reset_at"] = now
		}
		return tx.Model(&models.Subscription{}).Where("id = ?", existing.ID).Updates(updates).Error
	})
	if errTx != nil {
		return OutcomeNoop, fmt.Errorf("billing: upsert subscription: %w", errTx)
	}
	return outcome, nil
}

func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, entry *log.Entry, sub *stripe.Subscription) (Outcome, error) {
	entry = entry.WithField("subscription_id", sub.ID)
	var existing models.Subscription
	errFind := r.db.WithContext(ctx).Where("provider_subscription_id = ?", sub.ID).First(&existing).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		userID := resolveUserID("", sub.Metadata, nil)
		if userID == "" {
			entry.Warn("billing: update for unknown subscription")
			return OutcomeNoop, nil
		}
		status, ok := MapStatus(sub.Status)
		if !ok {
			status = models.SubscriptionStatusActive
		}
		return r.upsertForUser(ctx, entry.WithField("user_id", userID), userID, "", sub, status)
	}
	if errFind != nil {
		return OutcomeNoop, fmt.Errorf("billing: load subscription: %w", errFind)
	}

	tier, found, errTier := tierForSubscription(ctx, r.db, sub)
	if errTier != nil {
		return OutcomeNoop, errTier
	}
	if !found {
		entry.WithField("price_id", firstPriceID(sub)).Warn("billing: unmapped price")
		return OutcomeNoop, nil
	}
	status, ok := MapStatus(sub.Status)
	if !ok {
		entry.WithField("status", sub.Status).Info("billing: status has no local mapping")
		return OutcomeIgnored, nil
	}
	if !ValidTransition(existing.Status, status) {
		entry.WithFields(log.Fields{"from": existing.Status, "to": status}).Warn("billing: invalid status transition")
		return OutcomeIgnored, nil
	}

	periodStart, periodEnd := subscriptionPeriod(sub)
	now := r.now()
	updates := map[string]any{
		"tier_id":              tier.ID,
		"status":               status,
		"period_start":         periodStart,
		"period_end":           periodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"updated_at":           now,
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		updates["provider_customer_id"] = sub.Customer.ID
	}
	if periodEnd != nil && ShouldResetOnRenewal(r.policy, existing.PeriodEnd, *periodEnd) {
		updates["usage_count"] = 0
		updates["usage_reset_at"] = now
	}
	if errUpdate := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; errUpdate != nil {
		return OutcomeNoop, fmt.Errorf("billing: update subscription: %w", errUpdate)
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, entry *log.Entry, sub *stripe.Subscription) (Outcome, error) {
	entry = entry.WithField("subscription_id", sub.ID)
	db := r.db.WithContext(ctx)

	var existing models.Subscription
	errFind := db.Where("provider_subscription_id = ?", sub.ID).First(&existing).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) && sub.Customer != nil && sub.Customer.ID != "" {
		// A row already pointing at a newer subscription is left alone.
		errFind = db.Where("provider_customer_id = ?", sub.Customer.ID).
			Where("provider_subscription_id = '' OR provider_subscription_id IS NULL").
			Where("status <> ?", models.SubscriptionStatusCanceled).
			First(&existing).Error
	}
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		entry.Warn("billing: delete for unknown subscription")
		return OutcomeNoop, nil
	}
	if errFind != nil {
		return OutcomeNoop, fmt.Errorf("billing: load subscription: %w", errFind)
	}
	if !ValidTransition(existing.Status, models.SubscriptionStatusCanceled) {
		entry.WithField("from", existing.Status).Warn("billing: invalid status transition")
		return OutcomeIgnored, nil
	}

	if errUpdate := db.Model(&models.Subscription{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"tier_id":                  models.FreeTierID,
			"status":                   models.SubscriptionStatusCanceled,
			"provider_subscription_id": "",
			"period_end":               nil,
			"cancel_at_period_end":     false,
			"updated_at":               r.now(),
		}).Error; errUpdate != nil {
		return OutcomeNoop, fmt.Errorf("billing: cancel subscription: %w", errUpdate)
	}
	return OutcomeApplied, nil
}

// resolveUserID picks the first candidate that parses as a user id.
func resolveUserID(reference string, metadata ...map[string]string) string {
	candidates := []string{reference}
	for _, md := range metadata {
		candidates = append(candidates, md[metadataUserID], md[metadataLegacyUserID])
	}
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		if id, err := security.NormalizeUserID(candidate); err == nil {
			return id
		}
	}
	return ""
}

func firstPriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func subscriptionPeriod(sub *stripe.Subscription) (*time.Time, *time.Time) {
	var start, end *time.Time
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		start = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		end = &t
	}
	return start, end
}

func tierForSubscription(ctx context.Context, db *gorm.DB, sub *stripe.Subscription) (models.Tier, bool, error) {
	priceID := firstPriceID(sub)
	if priceID == "" {
		return models.Tier{}, false, nil
	}
	return TierByPrice(ctx, db, priceID)
}

// TierByPrice finds the tier whose monthly or yearly price id matches.
func TierByPrice(ctx context.Context, db *gorm.DB, priceID string) (models.Tier, bool, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return models.Tier{}, false, nil
	}
	var tier models.Tier
	errFind := db.WithContext(ctx).
		Where("provider_monthly_price_id = ? OR provider_yearly_price_id = ?", priceID, priceID).
		First(&tier).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Tier{}, false, nil
	}
	if errFind != nil {
		return models.Tier{}, false, fmt.Errorf("billing: lookup tier by price: %w", errFind)
	}
	return tier, true, nil
}
