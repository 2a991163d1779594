package billing

import (
	"context"
	"testing"
	"time"

	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func TestRollover(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	freeDue := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	paidDue := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	paidLater := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	rows := []models.Subscription{
		{UserID: "u-free-null", TierID: models.FreeTierID, UsageCount: 5, Status: models.SubscriptionStatusCanceled},
		{UserID: "u-free-due", TierID: models.FreeTierID, UsageCount: 50, Status: models.SubscriptionStatusActive, PeriodEnd: &freeDue},
		{UserID: "u-paid-due", TierID: "pro", UsageCount: 600, Status: models.SubscriptionStatusActive, PeriodEnd: &paidDue},
		{UserID: "u-paid-current", TierID: "pro", UsageCount: 30, Status: models.SubscriptionStatusActive, PeriodEnd: &paidLater},
	}
	require.NoError(t, conn.Create(&rows).Error)

	result, err := Rollover(context.Background(), conn, now)
	require.NoError(t, err)
	assert.Equal(t, RolloverResult{Initialized: 1, Advanced: 1, Reset: 1}, result)

	load := func(userID string) models.Subscription {
		var sub models.Subscription
		require.NoError(t, conn.Where("user_id = ?", userID).Take(&sub).Error)
		return sub
	}

	initialized := load("u-free-null")
	assert.Equal(t, int64(5), initialized.UsageCount)
	require.NotNil(t, initialized.PeriodEnd)
	assert.True(t, initialized.PeriodEnd.Equal(now.AddDate(0, 1, 0)))

	advanced := load("u-free-due")
	assert.Equal(t, int64(0), advanced.UsageCount)
	require.NotNil(t, advanced.PeriodStart)
	require.NotNil(t, advanced.PeriodEnd)
	assert.True(t, advanced.PeriodStart.Equal(time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, advanced.PeriodEnd.Equal(time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, int64(0), load("u-paid-due").UsageCount)
	assert.Equal(t, int64(30), load("u-paid-current").UsageCount)

	// Usage after the reset survives later sweeps until the period moves.
	require.NoError(t, conn.Model(&models.Subscription{}).Where("user_id = ?", "u-paid-due").Update("usage_count", 4).Error)
	result, err = Rollover(context.Background(), conn, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Total())
	assert.Equal(t, int64(4), load("u-paid-due").UsageCount)
}

func TestRollover_RenewalEventBeforeSweepStillResets(t *testing.T) {
	conn := openTestDB(t)
	lastReset := periodStart.Add(10 * time.Minute)
	start, end := periodStart, periodEnd
	require.NoError(t, conn.Create(&models.Subscription{
		UserID:                 testUserID,
		TierID:                 "pro",
		UsageCount:             600,
		Status:                 models.SubscriptionStatusActive,
		ProviderSubscriptionID: "sub_1",
		PeriodStart:            &start,
		PeriodEnd:              &end,
		UsageResetAt:           &lastReset,
	}).Error)
	rec := newTestReconciler(conn, nil)

	renew := func(from, to time.Time) {
		object := subscriptionObject("sub_1", "price_pro_m", stripe.SubscriptionStatusActive, nil)
		object["current_period_start"] = from.Unix()
		object["current_period_end"] = to.Unix()
		payload, header := signedEvent(t, testSecret, "customer.subscription.updated", object)
		outcome, err := rec.HandleWebhook(context.Background(), payload, header)
		require.NoError(t, err)
		require.Equal(t, OutcomeApplied, outcome)
	}

	// The renewal event lands first and moves the period forward.
	nextEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	renew(periodEnd, nextEnd)
	assert.Equal(t, int64(600), loadSub(t, conn).UsageCount)

	result, err := Rollover(context.Background(), conn, periodEnd.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Reset)
	assert.Equal(t, int64(0), loadSub(t, conn).UsageCount)

	// Once per period: later sweeps keep usage accrued in the new period.
	require.NoError(t, conn.Model(&models.Subscription{}).Where("user_id = ?", testUserID).Update("usage_count", 7).Error)
	result, err = Rollover(context.Background(), conn, periodEnd.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Reset)
	assert.Equal(t, int64(7), loadSub(t, conn).UsageCount)

	// The following renewal behaves the same way.
	renew(nextEnd, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC))
	result, err = Rollover(context.Background(), conn, nextEnd.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Reset)
	assert.Equal(t, int64(0), loadSub(t, conn).UsageCount)
}

func TestRollover_SweepBeforeRenewalEventResetsOnce(t *testing.T) {
	conn := openTestDB(t)
	lastReset := periodStart.Add(10 * time.Minute)
	start, end := periodStart, periodEnd
	require.NoError(t, conn.Create(&models.Subscription{
		UserID:                 testUserID,
		TierID:                 "pro",
		UsageCount:             600,
		Status:                 models.SubscriptionStatusActive,
		ProviderSubscriptionID: "sub_1",
		PeriodStart:            &start,
		PeriodEnd:              &end,
		UsageResetAt:           &lastReset,
	}).Error)

	result, err := Rollover(context.Background(), conn, periodEnd.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Reset)

	require.NoError(t, conn.Model(&models.Subscription{}).Where("user_id = ?", testUserID).Updates(map[string]any{
		"usage_count":  5,
		"period_start": periodEnd,
		"period_end":   time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
	}).Error)
	result, err = Rollover(context.Background(), conn, periodEnd.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Reset)
	assert.Equal(t, int64(5), loadSub(t, conn).UsageCount)
}
