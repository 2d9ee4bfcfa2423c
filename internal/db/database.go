package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"facebot-go/internal/config"
	"facebot-go/internal/core/models"

	"github.com/glebarez/sqlite" // Pure Go
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"
)

// Open initializes the database connection using the provided configuration
// and runs migrations.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	dbDir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory '%s': %w", dbDir, err)
	}

	// Route GORM's logger through logrus.
	gormLogger := gormlog.New(
		log.StandardLogger(),
		gormlog.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  gormlog.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)
	conn, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database '%s': %w", cfg.File, err)
	}

	log.Info("Running database migrations...")
	if err := conn.AutoMigrate(
		&models.FaceSample{},
		&models.LabelNote{},
		&models.BotUser{},
		&models.ModelSnapshot{},
		&models.CommandStat{},
	); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migrations completed.")

	return conn, nil
}
