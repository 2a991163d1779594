package billing

import (
	"strings"

	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/stripe/stripe-go/v76"
)

// MapStatus converts a billing provider subscription status to the local status.
// The second return is false for statuses that carry no local meaning (e.g. paused).
func MapStatus(status stripe.SubscriptionStatus) (models.SubscriptionStatus, bool) {
	switch stripe.SubscriptionStatus(strings.ToLower(strings.TrimSpace(string(status)))) {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return models.SubscriptionStatusActive, true
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return models.SubscriptionStatusPastDue, true
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionStatusCanceled, true
	default:
		return models.SubscriptionStatusNone, false
	}
}

// ValidTransition reports whether a subscription may move from one status to another.
//
//	none     -> active
//	active   -> past_due | canceled
//	past_due -> active | canceled
//	canceled -> active
//
// Re-applying the current status is always valid.
func ValidTransition(from, to models.SubscriptionStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case models.SubscriptionStatusNone:
		return to == models.SubscriptionStatusActive
	case models.SubscriptionStatusActive:
		return to == models.SubscriptionStatusPastDue || to == models.SubscriptionStatusCanceled
	case models.SubscriptionStatusPastDue:
		return to == models.SubscriptionStatusActive || to == models.SubscriptionStatusCanceled
	case models.SubscriptionStatusCanceled:
		return to == models.SubscriptionStatusActive
	default:
		return false
	}
}
