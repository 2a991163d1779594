package db

import (
	"fmt"

	"github.com/promptcraft/promptcraft/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect and seeds defaults.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

func autoMigrate(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.Tier{},
		&models.Subscription{},
		&models.UserCredential{},
		&models.Template{},
		&models.ModelConfig{},
		&models.HistoryRecord{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}

	if errCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_subscriptions_usage_non_negative'
			) THEN
				ALTER TABLE subscriptions
				ADD CONSTRAINT chk_subscriptions_usage_non_negative CHECK (usage_count >= 0);
			END IF;
		END $$;
	`).Error; errCheck != nil {
		return fmt.Errorf("db: add usage check: %w", errCheck)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_subscriptions_period_end_due
		ON subscriptions (period_end)
		WHERE period_end IS NOT NULL
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create period end index: %w", errIdx)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_prompt_history_user_created
		ON prompt_history (user_id, created_at DESC)
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create history index: %w", errIdx)
	}

	return Seed(conn)
}

// migrateSQLite applies SQLite-specific schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := autoMigrate(conn); errAutoMigrate != nil {
		return errAutoMigrate
	}

	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_subscriptions_period_end_due
		ON subscriptions (period_end)
		WHERE period_end IS NOT NULL
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create period end index: %w", errIdx)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_prompt_history_user_created
		ON prompt_history (user_id, created_at)
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create history index: %w", errIdx)
	}

	return Seed(conn)
}
