package db

import (
	"errors"
	"time"

	"notification-hub/shared/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var ErrMissingDSN = errors.New("db: missing DSN")

// Open connects to Postgres using the DSN from cfg.
func Open(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDSN == "" {
		return nil, ErrMissingDSN
	}
	return OpenWith(postgres.Open(cfg.DBDSN))
}

// OpenWith opens any gorm dialector with the shared gorm settings and pool
// limits. Tests use it with SQLite.
func OpenWith(dialector gorm.Dialector) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	gcfg := &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: false,
		PrepareStmt:            true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	}
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	return db, nil
}
