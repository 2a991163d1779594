package billing

import (
	"strings"
	"time"
)

// RenewalPolicy controls whether subscription update events reset usage.
type RenewalPolicy string

const (
	// RenewalNever leaves usage resets to the rollover sweep.
	RenewalNever RenewalPolicy = "never"
	// RenewalOnPeriodChange resets usage when an update moves the period end forward.
	RenewalOnPeriodChange RenewalPolicy = "period-change"
)

// ParseRenewalPolicy maps a config value to a policy, defaulting to RenewalNever.
func ParseRenewalPolicy(raw string) RenewalPolicy {
	switch RenewalPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case RenewalOnPeriodChange:
		return RenewalOnPeriodChange
	default:
		return RenewalNever
	}
}

// ShouldResetOnRenewal decides whether a subscription update that carries
// newEnd as the period end starts a new usage period.
func ShouldResetOnRenewal(policy RenewalPolicy, storedEnd *time.Time, newEnd time.Time) bool {
	if policy != RenewalOnPeriodChange || newEnd.IsZero() {
		return false
	}
	if storedEnd == nil || storedEnd.IsZero() {
		return false
	}
	return newEnd.After(*storedEnd)
}
