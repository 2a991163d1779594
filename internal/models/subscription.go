package models

import "time"

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

// SubscriptionStatus constants mirror the reconciler state machine.
const (
	// SubscriptionStatusNone marks a user without a subscription row.
	SubscriptionStatusNone SubscriptionStatus = ""
	// SubscriptionStatusActive marks a paid or free subscription in good standing.
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusPastDue marks a subscription with a failed renewal payment.
	SubscriptionStatusPastDue SubscriptionStatus = "past_due"
	// SubscriptionStatusCanceled marks a subscription that was ended.
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription stores a user's tier, usage counter and billing provider linkage.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string `gorm:"type:varchar(64);not null;uniqueIndex"` // Identity provider subject.

	TierID string `gorm:"type:varchar(64);not null;index"` // Current tier ID.
	Tier   *Tier  `gorm:"foreignKey:TierID"`               // Current tier.

	UsageCount int64              `gorm:"not null;default:0"`                         // Shared-credential generations this period.
	Status     SubscriptionStatus `gorm:"type:varchar(32);not null;default:'active'"` // Lifecycle status.

	ProviderCustomerID     string `gorm:"type:varchar(255);index"` // Billing provider customer ID.
	ProviderSubscriptionID string `gorm:"type:varchar(255);index"` // Billing provider subscription ID.

	PeriodStart       *time.Time // Current period start.
	PeriodEnd         *time.Time // Current period end.
	CancelAtPeriodEnd bool       `gorm:"not null;default:false"` // Scheduled cancellation flag.
	UsageResetAt      *time.Time // Last time the usage counter was rolled over.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
