/**
 * @description
 * Relational store connection manager using GORM.
 * DATABASE_URL selects the driver: postgres:// URLs use PostgreSQL, anything else is a SQLite file path.
 *
 * @dependencies
 * - gorm.io/gorm: ORM library
 * - gorm.io/driver/postgres: Postgres driver
 * - gorm.io/driver/sqlite: SQLite driver (local default and tests)
 */

package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stockscope/backend/internal/config"
	"github.com/stockscope/backend/internal/logger"
	"github.com/stockscope/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Connect opens the configured database and migrates the run tables.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	// Configure GORM logger based on environment
	gormLogLevel := gormLogger.Error
	if cfg.Server.Env == "development" {
		gormLogLevel = gormLogger.Info
	} else if cfg.Server.Env == "staging" {
		gormLogLevel = gormLogger.Warn
	} else if cfg.Server.Env == "test" {
		gormLogLevel = gormLogger.Silent
	}
	gormCfg := &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogLevel),
	}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.IsPostgres() {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DB.URL,
			PreferSimpleProtocol: true, // disable prepared statements to avoid stmtcache collisions behind poolers
		}), gormCfg)
	} else {
		db, err = openSQLite(cfg.DB.URL, gormCfg)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.IsPostgres() {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	} else {
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.IsPostgres() {
		logger.Info("✅ Connected to PostgreSQL")
	} else {
		logger.Info("✅ Opened SQLite database at %s", cfg.DB.URL)
	}
	return db, nil
}

// Migrate creates or updates the runs and prompt_results tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Run{}, &models.PromptResult{}); err != nil {
		return fmt.Errorf("migrate run tables: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func openSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	return gorm.Open(sqlite.Open(dsn), gormCfg)
}
