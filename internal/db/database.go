package db

import (
	"fmt"

	"treasury-backend/internal/config"
	"treasury-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to postgres and migrates the schema. TranslateError is
// required: every check-and-set mutation in the services relies on unique
// violations surfacing as gorm.ErrDuplicatedKey.
func InitDB() error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	var err error
	DB, err = gorm.Open(postgres.Open(config.AppConfig.Database.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	logrus.Info("✅ Database connected successfully")

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}

	logrus.Info("✅ Database schema migrated successfully")
	return nil
}

// Migrate runs AutoMigrate for every model. Shared with the test helpers
// so the sqlite test store carries the same unique constraints.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ConsumedNonce{},
		&models.MultisigWallet{},
		&models.MultisigSigner{},
		&models.MultisigTransaction{},
		&models.MultisigConfirmation{},
		&models.TransactionLock{},
		&models.BoundSession{},
		&models.CallChainStep{},
		&models.TransactionDependency{},
	)
}
