// Package db opens the gorm databases used by the edge: the local order cache
// on POS terminals and the print job queue on the gateway.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tunes the connection pool. Zero values leave driver defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// IsPostgres reports whether dsn names a postgres server rather than a
// sqlite file.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Dialector picks the gorm driver for dsn.
func Dialector(dsn string) gorm.Dialector {
	if IsPostgres(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Open connects to dsn and migrates models.
func Open(dsn string, opts Options, models ...any) (*gorm.DB, error) {
	if !IsPostgres(dsn) && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return OpenDialector(Dialector(dsn), opts, models...)
}

// OpenDialector is Open for an already built dialector, e.g. one wrapping a
// sqlmock connection.
func OpenDialector(d gorm.Dialector, opts Options, models ...any) (*gorm.DB, error) {
	level := opts.LogLevel
	if level == 0 {
		level = logger.Warn
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger: NewLogger(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if len(models) > 0 {
		log.Debug().Str("dialect", d.Name()).Int("models", len(models)).Msg("running database migrations")
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("automigrate failed: %w", err)
		}
	}
	return db, nil
}

// gormWriter routes gorm's log lines into zerolog. gorm only prints what
// passes its own level filter, so everything lands at warn.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// NewLogger builds the gorm logger. Lookups that find nothing are expected
// on cache and sync map misses and are not logged.
func NewLogger(level logger.LogLevel) logger.Interface {
	return logger.New(gormWriter{}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
