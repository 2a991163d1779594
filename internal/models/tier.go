package models

import (
	"time"

	"gorm.io/datatypes"
)

// FreeTierID identifies the tier applied to users without a paid subscription.
const FreeTierID = "free"

// Tier represents a subscription level and its billing provider linkage.
type Tier struct {
	ID string `gorm:"type:varchar(64);primaryKey"` // Stable tier identifier.

	Name        string `gorm:"type:varchar(255);not null"` // Display name.
	Description string `gorm:"type:text"`                  // Display description.

	Features datatypes.JSON `gorm:"type:jsonb"` // Display feature list (JSON array of strings).

	MonthlyQuota int64 `gorm:"not null;default:0"` // Shared-credential generations per period.
	RateLimit    int   `gorm:"not null;default:0"` // Generation requests per minute (0 = default).

	ProviderProductID      string `gorm:"type:varchar(255);index"` // Billing provider product ID.
	ProviderMonthlyPriceID string `gorm:"type:varchar(255);index"` // Billing provider monthly price ID.
	ProviderYearlyPriceID  string `gorm:"type:varchar(255);index"` // Billing provider yearly price ID.

	MonthlyPriceCents int64  `gorm:"not null;default:0"`            // Cached monthly price in cents.
	YearlyPriceCents  int64  `gorm:"not null;default:0"`            // Cached yearly price in cents.
	Currency          string `gorm:"type:varchar(8);default:'usd'"` // Cached price currency.

	SortOrder int  `gorm:"not null;default:0"` // Display ordering weight.
	IsEnabled bool `gorm:"not null"`           // Whether the tier is offered.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DefaultFreeTier returns the in-memory free tier used when no row exists.
func DefaultFreeTier() Tier {
	return Tier{ID: FreeTierID, Name: "Free", MonthlyQuota: 50, IsEnabled: true}
}
