package models

import (
	"time"

	"gorm.io/datatypes"
)

// Template is a prompt structure with named placeholders and a parameter schema.
type Template struct {
	ID string `gorm:"type:varchar(128);primaryKey"` // Stable template identifier.

	Category    string `gorm:"type:varchar(32);not null;index"` // Image, Video, Text or Utility.
	Name        string `gorm:"type:varchar(255);not null"`      // Display name.
	Description string `gorm:"type:text"`                       // Display description.
	Structure   string `gorm:"type:text;not null"`              // Template with {{placeholders}}.
	HelpText    string `gorm:"type:text"`                       // Optional usage hint.

	DefaultParams datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Default parameter values.
	ParamSchema   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Parameter control definitions.

	IsActive bool `gorm:"not null"` // Whether the template is selectable.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
