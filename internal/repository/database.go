// Package repository provides the data access layer using GORM.
package repository

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/roamly/progression-engine/internal/config"
	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

func (db *DB) ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// NewDB opens the PostgreSQL connection, applies pool settings and verifies
// it with a ping.
func NewDB(cfg *config.PostgresConfig, log *logger.Logger) (*DB, error) {
	db, err := gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel(log)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	wrapped := &DB{db}
	if err := wrapped.ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL")

	return wrapped, nil
}

func buildDSN(cfg *config.PostgresConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// gormLogLevel maps the application log level onto gorm's logger. SQL
// statements are only logged when the app itself runs at debug.
func gormLogLevel(log *logger.Logger) gormlogger.LogLevel {
	if log.GetLogger().GetLevel() <= 0 {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

// AutoMigrate creates the schema from the model definitions. Production uses
// the SQL migrations; this covers tests and development databases.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.User{},
		&models.UserProgression{},
		&models.RewardEvent{},
		&models.BadgeDefinition{},
		&models.TaskDefinition{},
		&models.TaskCompletion{},
		&models.UserBadge{},
		&models.MemoryCapsule{},
		&models.Reply{},
	)
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health reports whether the database answers a ping.
func (db *DB) Health() error {
	return db.ping()
}
