package storage

import (
	"fmt"

	"github.com/aixtiv/sallyport/internal/common/config"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewStore creates a new store based on the configuration
func NewStore(logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger.Info("initializing storage", zap.String("type", cfg.Type))
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(&cfg.Redis)
	case "database":
		return NewDatabaseStore(&cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// NewDatabaseStore opens the configured database and runs migrations.
func NewDatabaseStore(cfg *config.DatabaseConfig) (*DatabaseStore, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	case "mysql":
		dialector = mysql.Open(cfg.GetDSN())
	case "sqlite":
		if err := config.EnsureSQLiteDir(cfg.DBName); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newDatabaseStore(db)
}
