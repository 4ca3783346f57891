package database

import (
	"fmt"

	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and runs auto-migration. The
// returned handle is injected into the store; nothing here is package-global.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	err = db.AutoMigrate(
		&models.Contact{},
		&models.Conversation{},
		&models.Message{},
		&models.AutomationRule{},
		&models.AutomationLog{},
		&models.Template{},
		&models.Campaign{},
		&models.CampaignRecipient{},
		&models.Ticket{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto-migration: %w", err)
	}

	return db, nil
}
