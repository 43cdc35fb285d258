package storage

import (
	"fmt"
	"log"
	"time"

	"tg-bale-bridge/internal/config"
	"tg-bale-bridge/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	// DB is the global database connection
	DB *gorm.DB
)

// Initialize sets up the database connection based on configuration.
// The sqlite driver is the default; mysql is available for server
// deployments.
func Initialize(cfg *config.Config) error {
	// Skip if database is disabled
	if !cfg.Database.Enabled {
		log.Printf("Database support is disabled, state will not survive restarts")
		return nil
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			cfg.Database.Username,
			cfg.Database.Password,
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.DBName,
			cfg.Database.Charset,
		)
		log.Printf("Connecting to database: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
		dialector = mysql.Open(dsn)
	case "", "sqlite":
		log.Printf("Opening sqlite database: %s", cfg.Database.Path)
		dialector = sqlite.Open(cfg.Database.Path)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	var err error
	// TranslateError turns driver duplicate-key errors into
	// gorm.ErrDuplicatedKey, which the link store relies on for its
	// atomic unique insert.
	DB, err = gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         NewGormLogger(cfg.Logger.Level),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying SQL DB to configure connection pool
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	if cfg.Database.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent listeners
		sqlDB.SetMaxOpenConns(1)
	}

	log.Printf("Database connection established successfully")
	return nil
}

// GetDB returns the database connection
func GetDB() *gorm.DB {
	return DB
}

// Migrate ensures the bridge tables exist with the right schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Link{},
		&models.Pair{},
		&models.VerificationCode{},
	)
}
