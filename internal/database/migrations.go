package database

import (
	"errors"
	"strings"
	"time"

	"github.com/hytky/forum-backend/internal/forum"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSeedForumRoot  = "2026-08-10_seed_forum_root_category"
	defaultRootCategoryName = "Forum"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger, opts Options) error {
	migrations := []migrationDefinition{
		{name: migrationSeedForumRoot, apply: seedForumRoot(opts.RootCategoryName)},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// seedForumRoot inserts the single parentless root category when absent.
// Root discovery elsewhere always goes through "parent IS NULL", never a
// hardcoded id, so the seed only has to guarantee existence.
func seedForumRoot(rootName string) func(*gorm.DB) error {
	name := strings.TrimSpace(rootName)
	if name == "" {
		name = defaultRootCategoryName
	}
	return func(db *gorm.DB) error {
		var count int64
		err := db.Model(&forum.Category{}).
			Where("parent_category_id IS NULL").
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		root := forum.Category{
			Name:             name,
			CreatedAtSeconds: time.Now().UTC().Unix(),
		}
		return db.Create(&root).Error
	}
}
