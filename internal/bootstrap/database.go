package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"marzbot/internal/models"
)

// Migrate creates or updates the schema for all persisted tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.AccountLink{},
		&models.PaymentRequest{},
		&models.PaymentLedger{},
	); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}
