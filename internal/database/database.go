package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"expertmarket/marketplace-backend/internal/bids"
	"expertmarket/marketplace-backend/internal/config"
	"expertmarket/marketplace-backend/internal/contracts"
	"expertmarket/marketplace-backend/internal/escrow"
	"expertmarket/marketplace-backend/internal/notifications"
	"expertmarket/marketplace-backend/internal/projects"
	"expertmarket/marketplace-backend/internal/vetting"
)

// Init opens the database and migrates every model owned by the settlement
// core.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(
		&projects.Project{},
		&projects.StateTransition{},
		&bids.Bid{},
		&contracts.Contract{},
		&escrow.Account{},
		&escrow.PaymentRelease{},
		&escrow.Transaction{},
		&escrow.Invoice{},
		&vetting.ExpertProfile{},
		&notifications.SentNotification{},
		&notifications.DeliveryLog{},
		&notifications.UserContact{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// one active bid per expert per project, enforced across connections
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_active_per_expert
		ON bids (project_id, expert_id)
		WHERE status IN ('pending', 'accepted')`).Error; err != nil {
		return nil, fmt.Errorf("failed to create active bid index: %w", err)
	}

	return db, nil
}
