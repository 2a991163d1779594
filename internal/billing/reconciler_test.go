package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/db"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

const (
	testSecret = "whsec_test"
	testUserID = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"
)

var (
	periodStart = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	require.NoError(t, conn.Model(&models.Tier{}).Where("id = ?", "pro").Updates(map[string]any{
		"provider_product_id":       "prod_pro",
		"provider_monthly_price_id": "price_pro_m",
		"provider_yearly_price_id":  "price_pro_y",
	}).Error)
	require.NoError(t, conn.Model(&models.Tier{}).Where("id = ?", "basic").Updates(map[string]any{
		"provider_product_id":       "prod_basic",
		"provider_monthly_price_id": "price_basic_m",
	}).Error)
	return conn
}

type fakeSource struct {
	subs  map[string]*stripe.Subscription
	calls int
}

func (f *fakeSource) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.calls++
	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", id)
	}
	return sub, nil
}

func subscriptionObject(id, priceID string, status stripe.SubscriptionStatus, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"status":               status,
		"customer":             "cus_1",
		"current_period_start": periodStart.Unix(),
		"current_period_end":   periodEnd.Unix(),
		"cancel_at_period_end": false,
		"metadata":             metadata,
		"items": map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{"id": "si_" + id, "object": "subscription_item", "price": map[string]any{"id": priceID, "object": "price"}},
			},
		},
	}
}

func decodeSubscription(t *testing.T, object map[string]any) *stripe.Subscription {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal(raw, &sub))
	return &sub
}

func signedEvent(t *testing.T, secret, eventType string, object any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":     "evt_" + eventType,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: raw, Secret: secret})
	return signed.Payload, signed.Header
}

func checkoutObject(subID string) map[string]any {
	return map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"mode":                "subscription",
		"client_reference_id": testUserID,
		"customer":            "cus_1",
		"subscription":        subID,
	}
}

func loadSub(t *testing.T, conn *gorm.DB) models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, conn.Where("user_id = ?", testUserID).Take(&sub).Error)
	return sub
}

func newTestReconciler(conn *gorm.DB, source SubscriptionSource) *Reconciler {
	return NewReconciler(conn, source, testSecret, RenewalNever, nil)
}

func TestCheckoutCompleted_CreatesSubscription(t *testing.T) {
	conn := openTestDB(t)
	source := &fakeSource{subs: map[string]*stripe.Subscription{
		"sub_1": decodeSubscription(t, subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusActive, nil)),
	}}
	rec := newTestReconciler(conn, source)

	payload, header := signedEvent(t, testSecret, "checkout.session.completed", checkoutObject("sub_1"))
	outcome, err := rec.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	sub := loadSub(t, conn)
	assert.Equal(t, "pro", sub.TierID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "cus_1", sub.ProviderCustomerID)
	assert.Equal(t, "sub_1", sub.ProviderSubscriptionID)
	assert.Equal(t, int64(0), sub.UsageCount)
	require.NotNil(t, sub.PeriodEnd)
	assert.True(t, periodEnd.Equal(*sub.PeriodEnd))
}

func TestCheckoutCompleted_AlwaysActive(t *testing.T) {
	conn := openTestDB(t)
	source := &fakeSource{subs: map[string]*stripe.Subscription{
		"sub_1": decodeSubscription(t, subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusIncomplete, nil)),
	}}

	payload, header := signedEvent(t, testSecret, "checkout.session.completed", checkoutObject("sub_1"))
	outcome, err := newTestReconciler(conn, source).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	sub := loadSub(t, conn)
	assert.Equal(t, "pro", sub.TierID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestSubscriptionUpdated_UnknownSubscriptionKeepsMappedStatus(t *testing.T) {
	conn := openTestDB(t)
	object := subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusPastDue, map[string]string{"user_id": testUserID})

	payload, header := signedEvent(t, testSecret, "customer.subscription.updated", object)
	outcome, err := newTestReconciler(conn, nil).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, models.SubscriptionStatusPastDue, loadSub(t, conn).Status)
}

func TestCheckoutCompleted_RedeliveryKeepsUsage(t *testing.T) {
	conn := openTestDB(t)
	source := &fakeSource{subs: map[string]*stripe.Subscription{
		"sub_1": decodeSubscription(t, subscriptionObject("sub_1", "price_pro_y", stripe.SubscriptionStatusActive, nil)),
	}}
	rec := newTestReconciler(conn, source)
	payload, header := signedEvent(t, testSecret, "checkout.session.completed", checkoutObject("sub_1"))

	_, err := rec.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Subscription{}).Where("user_id = ?", testUserID).Update("usage_count", 7).Error)

	_, err = rec.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)

	sub := loadSub(t, conn)
	assert.Equal(t, "pro", sub.TierID, "yearly price maps to the same tier")
	assert.Equal(t, int64(7), sub.UsageCount, "redelivered checkout must not wipe usage")

	var count int64
	require.NoError(t, conn.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCheckoutCompleted_NewSubscriptionResetsFreeUsage(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.Create(&models.Subscription{UserID: testUserID, TierID: models.FreeTierID, UsageCount: 50, Status: models.SubscriptionStatusActive}).Error)
	source := &fakeSource{subs: map[string]*stripe.Subscription{
		"sub_1": decodeSubscription(t, subscriptionObject("sub_1", "price_basic_m", stripe.SubscriptionStatusActive, nil)),
	}}

	payload, header := signedEvent(t, testSecret, "checkout.session.completed", checkoutObject("sub_1"))
	_, err := newTestReconciler(conn, source).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)

	sub := loadSub(t, conn)
	assert.Equal(t, "basic", sub.TierID)
	assert.Equal(t, int64(0), sub.UsageCount)
	assert.NotNil(t, sub.UsageResetAt)
}

func TestCheckoutCompleted_UserFromSubscriptionMetadata(t *testing.T) {
	conn := openTestDB(t)
	source := &fakeSource{subs: map[string]*stripe.Subscription{
		"sub_1": decodeSubscription(t, subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusActive, map[string]string{"user_id": testUserID})),
	}}
	object := checkoutObject("sub_1")
	object["client_reference_id"] = "not-a-uuid"

	payload, header := signedEvent(t, testSecret, "checkout.session.completed", object)
	outcome, err := newTestReconciler(conn, source).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, "pro", loadSub(t, conn).TierID)
}

func TestCheckoutCompleted_UnmappedPriceIsNoop(t *testing.T) {
	conn := openTestDB(t)
	source := &fakeSource{subs: map[string]*stripe.Subscription{
		"sub_1": decodeSubscription(t, subscriptionObject("sub_1", "price_unknown", stripe.SubscriptionStatusActive, nil)),
	}}

	payload, header := signedEvent(t, testSecret, "checkout.session.completed", checkoutObject("sub_1"))
	outcome, err := newTestReconciler(conn, source).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	var count int64
	require.NoError(t, conn.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSubscriptionDeleted_DowngradesToFree(t *testing.T) {
	conn := openTestDB(t)
	end := periodEnd
	require.NoError(t, conn.Create(&models.Subscription{
		UserID:                 testUserID,
		TierID:                 "pro",
		UsageCount:             12,
		Status:                 models.SubscriptionStatusActive,
		ProviderCustomerID:     "cus_1",
		ProviderSubscriptionID: "sub_1",
		PeriodEnd:              &end,
		CancelAtPeriodEnd:      true,
	}).Error)

	object := subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusCanceled, nil)
	payload, header := signedEvent(t, testSecret, "customer.subscription.deleted", object)
	outcome, err := newTestReconciler(conn, nil).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	sub := loadSub(t, conn)
	assert.Equal(t, models.FreeTierID, sub.TierID)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	assert.Empty(t, sub.ProviderSubscriptionID)
	assert.Nil(t, sub.PeriodEnd)
	assert.False(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "cus_1", sub.ProviderCustomerID)

	// Redelivery matches nothing and changes nothing.
	outcome, err = newTestReconciler(conn, nil).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
}

func TestSubscriptionUpdated_MapsStatusAndTier(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, conn.Create(&models.Subscription{
		UserID:                 testUserID,
		TierID:                 "basic",
		UsageCount:             3,
		Status:                 models.SubscriptionStatusActive,
		ProviderSubscriptionID: "sub_1",
	}).Error)
	rec := newTestReconciler(conn, nil)

	payload, header := signedEvent(t, testSecret, "customer.subscription.updated",
		subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusPastDue, nil))
	outcome, err := rec.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	sub := loadSub(t, conn)
	assert.Equal(t, "pro", sub.TierID)
	assert.Equal(t, models.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, int64(3), sub.UsageCount)

	payload, header = signedEvent(t, testSecret, "customer.subscription.updated",
		subscriptionObject("sub_1", "price_unknown", stripe.SubscriptionStatusActive, nil))
	outcome, err = rec.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	assert.Equal(t, models.SubscriptionStatusPastDue, loadSub(t, conn).Status, "unmapped price leaves the row untouched")
}

func TestSubscriptionUpdated_RenewalPolicy(t *testing.T) {
	conn := openTestDB(t)
	oldEnd := periodStart
	require.NoError(t, conn.Create(&models.Subscription{
		UserID:                 testUserID,
		TierID:                 "pro",
		UsageCount:             40,
		Status:                 models.SubscriptionStatusActive,
		ProviderSubscriptionID: "sub_1",
		PeriodEnd:              &oldEnd,
	}).Error)
	object := subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusActive, nil)

	payload, header := signedEvent(t, testSecret, "customer.subscription.updated", object)
	_, err := newTestReconciler(conn, nil).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, int64(40), loadSub(t, conn).UsageCount, "default policy never resets on update")

	require.NoError(t, conn.Model(&models.Subscription{}).Where("user_id = ?", testUserID).Update("period_end", oldEnd).Error)
	rec := NewReconciler(conn, nil, testSecret, RenewalOnPeriodChange, nil)
	_, err = rec.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, int64(0), loadSub(t, conn).UsageCount)
}

func TestHandleWebhook_TamperedSignatureTouchesNothing(t *testing.T) {
	conn := openTestDB(t)
	end := periodEnd
	require.NoError(t, conn.Create(&models.Subscription{
		UserID:                 testUserID,
		TierID:                 "pro",
		Status:                 models.SubscriptionStatusActive,
		ProviderSubscriptionID: "sub_1",
		PeriodEnd:              &end,
	}).Error)
	source := &fakeSource{subs: map[string]*stripe.Subscription{
		"sub_2": decodeSubscription(t, subscriptionObject("sub_2", "price_basic_m", stripe.SubscriptionStatusActive, nil)),
	}}
	rec := newTestReconciler(conn, source)

	cases := []struct {
		name      string
		eventType string
		object    any
	}{
		{"checkout", "checkout.session.completed", checkoutObject("sub_2")},
		{"deleted", "customer.subscription.deleted", subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusCanceled, nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, _ := signedEvent(t, testSecret, tc.eventType, tc.object)
			_, forged := signedEvent(t, "whsec_other", tc.eventType, tc.object)

			_, err := rec.HandleWebhook(context.Background(), payload, forged)
			var sigErr *apperr.InvalidSignatureError
			require.ErrorAs(t, err, &sigErr)

			sub := loadSub(t, conn)
			assert.Equal(t, "pro", sub.TierID)
			assert.Equal(t, "sub_1", sub.ProviderSubscriptionID)
			assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
		})
	}
	assert.Equal(t, 0, source.calls, "no provider lookups before verification")

	_, err := rec.HandleWebhook(context.Background(), []byte(`{"id":"evt"}`), "")
	assert.True(t, apperr.Is[*apperr.InvalidSignatureError](err))
}

func TestApply_UnhandledEventIgnored(t *testing.T) {
	conn := openTestDB(t)
	payload, header := signedEvent(t, testSecret, "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"})
	outcome, err := newTestReconciler(conn, nil).HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestCatalogEvents_UpdateTierOnly(t *testing.T) {
	conn := openTestDB(t)
	rec := newTestReconciler(conn, nil)
	ctx := context.Background()

	payload, header := signedEvent(t, testSecret, "product.created", map[string]any{
		"id": "prod_team", "object": "product", "name": "Team", "description": "Shared seats",
		"metadata": map[string]string{"tier_id": "basic"},
	})
	outcome, err := rec.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	payload, header = signedEvent(t, testSecret, "price.updated", map[string]any{
		"id": "price_team_y", "object": "price", "active": true, "currency": "EUR", "unit_amount": 2400,
		"product":   "prod_team",
		"recurring": map[string]any{"interval": "year"},
		"metadata":  map[string]string{"monthly_quota": "-3"},
	})
	outcome, err = rec.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	var tier models.Tier
	require.NoError(t, conn.Where("id = ?", "basic").Take(&tier).Error)
	assert.Equal(t, "Team", tier.Name)
	assert.Equal(t, "prod_team", tier.ProviderProductID)
	assert.Equal(t, "price_team_y", tier.ProviderYearlyPriceID)
	assert.Equal(t, int64(2400), tier.YearlyPriceCents)
	assert.Equal(t, "eur", tier.Currency)
	assert.Equal(t, int64(200), tier.MonthlyQuota, "invalid quota metadata is ignored")

	var count int64
	require.NoError(t, conn.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
