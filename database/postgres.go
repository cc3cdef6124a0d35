package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"messenger-core/config"
	"messenger-core/model"
)

// PostgresConnect opens the directory/message database and migrates the tables
// the messaging core owns.
func PostgresConnect(s config.PostgresSettings, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(s.DSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	log.Info("connection opened to Postgres")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("Postgres database migrated")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.UserBlock{},
		&model.Message{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
