package users

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/hytky/forum-backend/internal/auth"
)

var testNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func TestRecordLoginCreatesIdentity(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	userID, err := service.RecordLogin(auth.TelegramClaims{
		Subject:     "42",
		Username:    "aino",
		DisplayName: "Aino Korhonen",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "42" {
		t.Fatalf("unexpected user id %q", userID)
	}

	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", "telegram", "42").Take(&identity).Error; err != nil {
		t.Fatalf("failed to load identity: %v", err)
	}
	if identity.DisplayName != "Aino Korhonen" || identity.Username != "aino" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestRecordLoginUpdatesChangedFields(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	if _, err := service.RecordLogin(auth.TelegramClaims{Subject: "42", Username: "aino", DisplayName: "Aino"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.RecordLogin(auth.TelegramClaims{Subject: "42", Username: "aino_k", DisplayName: "Aino Korhonen"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count identities: %v", err)
	}
	if count != 1 {
		t.Fatalf("repeat login must not create a second row, got %d", count)
	}

	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", "telegram", "42").Take(&identity).Error; err != nil {
		t.Fatalf("failed to load identity: %v", err)
	}
	if identity.Username != "aino_k" || identity.DisplayName != "Aino Korhonen" {
		t.Fatalf("identity not refreshed, got %+v", identity)
	}
}

func TestRecordLoginSurfacesRefreshFailure(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	if _, err := service.RecordLogin(auth.TelegramClaims{Subject: "42", DisplayName: "Aino"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Block updates so the refresh path fails while reads still work.
	trigger := `CREATE TRIGGER block_identity_updates BEFORE UPDATE ON user_identities
		BEGIN SELECT RAISE(ABORT, 'update blocked'); END`
	if err := db.Exec(trigger).Error; err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	_, err := service.RecordLogin(auth.TelegramClaims{Subject: "42", DisplayName: "Aino Korhonen"})
	if err == nil {
		t.Fatalf("expected the failed refresh to be reported")
	}
}

func TestRecordLoginRejectsEmptySubject(t *testing.T) {
	service := newTestService(t, newTestDB(t))

	_, err := service.RecordLogin(auth.TelegramClaims{Subject: "  "})
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestDisplayNameFallsBackToID(t *testing.T) {
	db := newTestDB(t)
	service := newTestService(t, db)

	if name := service.DisplayName("unknown-user"); name != "unknown-user" {
		t.Fatalf("expected fallback to id, got %q", name)
	}

	if _, err := service.RecordLogin(auth.TelegramClaims{Subject: "42", DisplayName: "Aino"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name := service.DisplayName("42"); name != "Aino" {
		t.Fatalf("expected recorded name, got %q", name)
	}
}
