package service

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/kiosksync/internal/config"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the engine uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Kiosk{},
		&models.Campaign{},
		&models.MediaAsset{},
		&models.ProviderConfig{},
		&models.FolderMapping{},
		&models.UploadJob{},
		&models.SyncJob{},
		&models.ErrorLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// NewStore opens the configured store. The returned close function releases
// the underlying connection pool, if any.
func NewStore(cfg *config.DatabaseConfig) (repository.Store, func() error, error) {
	switch cfg.Type {
	case "memory":
		return repository.NewMemoryStore(), func() error { return nil }, nil
	case "postgres", "":
		db, err := NewDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		return repository.NewGormStore(db), sqlDB.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}
