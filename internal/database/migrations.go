package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationCoalesceNullNotes = "2024-02-01_coalesce_null_notes"

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
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationCoalesceNullNotes, apply: coalesceNullNotes},
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
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		}); err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// coalesceNullNotes rewrites NULL notes left by older schemas to the empty
// string so the NOT NULL columns can be enforced.
func coalesceNullNotes(db *gorm.DB) error {
	for _, table := range []string{"foods", "meals"} {
		if !db.Migrator().HasTable(table) {
			continue
		}
		if err := db.Table(table).Where("notes IS NULL").Update("notes", "").Error; err != nil {
			return err
		}
	}
	return nil
}
