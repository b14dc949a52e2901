package database

import (
	"errors"
	"time"

	"github.com/praxislabs/patientdesk/backend/internal/staff"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeStaffEmails = "2026-04-18_normalize_staff_emails"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeStaffEmails, apply: normalizeStaffEmails},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func normalizeStaffEmails(db *gorm.DB) error {
	return db.Model(&staff.Identity{}).
		Where("staff_email <> lower(staff_email)").
		Update("staff_email", gorm.Expr("lower(staff_email)")).Error
}
