package forum

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testClockSeconds = 1750000000

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:forum_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Category{}, &Thread{}, &Post{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Exec("CREATE TABLE IF NOT EXISTS user_identities (provider TEXT, subject TEXT, user_id TEXT, username TEXT, user_display_name TEXT, user_avatar_url TEXT, last_seen_at DATETIME, created_at DATETIME, updated_at DATETIME)").Error; err != nil {
		t.Fatalf("failed to create identities table: %v", err)
	}

	root := Category{Name: "Forum", CreatedAtSeconds: testClockSeconds}
	if err := db.Create(&root).Error; err != nil {
		t.Fatalf("failed to seed root category: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(testClockSeconds, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func newTestResolver(t *testing.T, db *gorm.DB) *Resolver {
	t.Helper()

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	resolver, err := NewResolver(store, nil)
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}
	return resolver
}

func mustRootID(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var root Category
	if err := db.Where("parent_category_id IS NULL").Take(&root).Error; err != nil {
		t.Fatalf("failed to load root category: %v", err)
	}
	return root.ID
}

func mustCategory(t *testing.T, db *gorm.DB, name string, parentID int64) Category {
	t.Helper()

	category := Category{
		Name:             name,
		ParentCategoryID: &parentID,
		CreatedAtSeconds: testClockSeconds,
	}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("failed to create category %q: %v", name, err)
	}
	return category
}

func mustThread(t *testing.T, db *gorm.DB, name string, categoryID int64, authorID string) Thread {
	t.Helper()

	thread := Thread{
		Name:             name,
		CategoryID:       categoryID,
		AuthorID:         authorID,
		CreatedAtSeconds: testClockSeconds,
	}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("failed to create thread %q: %v", name, err)
	}
	return thread
}

func mustPost(t *testing.T, db *gorm.DB, content string, threadID int64, authorID string) Post {
	t.Helper()

	post := Post{
		Content:          content,
		ThreadID:         threadID,
		AuthorID:         authorID,
		CreatedAtSeconds: testClockSeconds,
	}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return post
}
