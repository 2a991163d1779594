package models

import "time"

// ModelConfig describes a generative model endpoint and its shared credential source.
type ModelConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ModelID     string `gorm:"type:varchar(255);not null;uniqueIndex"` // Public model identifier.
	Name        string `gorm:"type:varchar(255);not null"`             // Display name.
	Provider    string `gorm:"type:varchar(64);not null;index"`        // Provider identifier.
	Description string `gorm:"type:text"`                              // Display description.
	Endpoint    string `gorm:"type:text;not null"`                     // Upstream endpoint URL.
	EnvKey      string `gorm:"type:varchar(255);not null"`             // Shared credential variable name.

	IsActive bool `gorm:"not null"` // Whether the model is selectable.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
