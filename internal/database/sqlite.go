package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/hytky/forum-backend/internal/events"
	"github.com/hytky/forum-backend/internal/forum"
	"github.com/hytky/forum-backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options tunes database initialization.
type Options struct {
	// RootCategoryName names the seeded forum root. Empty keeps the default.
	RootCategoryName string
}

// OpenSQLite establishes a SQLite connection, performs schema migrations and
// seeds the forum root category when missing.
func OpenSQLite(path string, logger *zap.Logger, opts Options) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, logger, opts); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate applies the schema and named migrations on an open connection.
// Split out of OpenSQLite so tests can run it against in-memory databases.
func Migrate(db *gorm.DB, logger *zap.Logger, opts Options) error {
	err := db.AutoMigrate(
		&forum.Category{},
		&forum.Thread{},
		&forum.Post{},
		&events.Event{},
		&events.SyncCursor{},
		&users.Identity{},
		&migrationRecord{},
	)
	if err != nil {
		return err
	}

	return applyMigrations(db, logger, opts)
}
