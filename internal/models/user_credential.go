package models

import "time"

// UserCredential stores a user's own upstream API key for one provider.
type UserCredential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID       string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_credentials_user_provider"` // Owning user.
	Provider     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_credentials_user_provider"` // Provider identifier.
	EncryptedKey string `gorm:"type:text;not null"`                                                       // Sealed API key.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
