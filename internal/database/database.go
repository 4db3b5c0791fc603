package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	sqliteForeignKeysPragma = "_pragma=foreign_keys(1)"
)

// Config selects and locates the backing store.
type Config struct {
	Driver string
	Path   string
	DSN    string
	Logger *zap.Logger
}

// Open connects to the configured store and brings its schema up to date.
func Open(cfg Config) (*gorm.DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	dialector, location, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, err
		}
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", cfg.Driver), zap.String("location", location))
	return db, nil
}

// Migrate applies pending data migrations and then the schema.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&migrationRecord{}); err != nil {
		return err
	}
	if err := applyMigrations(db, logger); err != nil {
		return err
	}
	return db.AutoMigrate(&feeding.Food{}, &feeding.Meal{}, &users.Identity{})
}

func dialectorFor(cfg Config) (gorm.Dialector, string, error) {
	switch cfg.Driver {
	case DriverSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, "", fmt.Errorf("database path is required")
		}
		return sqlite.Open(withSQLitePragma(path)), path, nil
	case DriverPostgres:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, "", fmt.Errorf("database dsn is required")
		}
		return postgres.Open(dsn), "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func withSQLitePragma(path string) string {
	if strings.Contains(path, sqliteForeignKeysPragma) {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + sqliteForeignKeysPragma
}
