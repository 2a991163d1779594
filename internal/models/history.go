package models

import "time"

// HistoryRecord is an append-only record of one successful generation.
type HistoryRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     string `gorm:"type:varchar(64);not null;index"` // Owning user.
	TemplateID string `gorm:"type:varchar(128);index"`         // Template used, if any.
	ModelID    string `gorm:"type:varchar(255)"`               // Model used.

	InputTopic string `gorm:"type:text;not null"` // Raw topic text.
	OutputText string `gorm:"type:text;not null"` // Generated prompt.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName overrides the default table name.
func (HistoryRecord) TableName() string {
	return "prompt_history"
}
