package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is a process-local sqlite database shared by every connection of the pool.
const MemoryDSN = "file:messenger?mode=memory&cache=shared"

// SQLiteConnect opens the directory on sqlite. It backs the memory message
// store so a single process runs without external services.
func SQLiteConnect(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	log.Info("connection opened to SQLite", zap.String("dsn", dsn))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
