package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/praxislabs/patientdesk/backend/internal/platform"
	"github.com/praxislabs/patientdesk/backend/internal/staff"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&platform.CollectionItem{}, &staff.Identity{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := migrateStaffIDs(db); err != nil && logger != nil {
		logger.Warn("staff id migration failed", zap.Error(err))
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Early builds stored the raw "provider:subject" pair as the staff id.
func migrateStaffIDs(db *gorm.DB) error {
	const prefix = "platform:"
	start := len(prefix) + 1
	update := fmt.Sprintf("UPDATE staff_identities SET staff_id = substr(staff_id, %d) WHERE staff_id LIKE '%s%%';", start, prefix)
	return db.Exec(update).Error
}
