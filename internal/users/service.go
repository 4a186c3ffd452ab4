package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hytky/forum-backend/internal/auth"
	"gorm.io/gorm"
)

const telegramProvider = "telegram"

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages forum user identities recorded at login. Post rendering
// joins against these rows to attach display names to author ids.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// RecordLogin upserts the identity row for a verified Telegram login and
// returns the forum user id used as the actor identifier everywhere else.
func (s *Service) RecordLogin(claims auth.TelegramClaims) (string, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := telegramProvider + ":" + subject

	var identity Identity
	err := s.db.
		Where("provider = ? AND subject = ?", telegramProvider, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = Identity{
			Provider:    telegramProvider,
			Subject:     subject,
			UserID:      subject,
			Username:    normalize(claims.Username),
			DisplayName: normalize(claims.DisplayName),
			AvatarURL:   normalize(claims.AvatarURL),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&identity).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if username := normalize(claims.Username); username != "" && username != identity.Username {
			updates["username"] = username
		}
		if display := normalize(claims.DisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
		}
		if avatar := normalize(claims.AvatarURL); avatar != "" && avatar != identity.AvatarURL {
			updates["user_avatar_url"] = avatar
		}
		err := s.db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", telegramProvider, subject).
			Updates(updates).
			Error
		if err != nil {
			return "", err
		}
	}

	s.cache.Store(cacheKey, identity.UserID)
	return identity.UserID, nil
}

// DisplayName returns the recorded display name for a user id, falling back
// to the id itself when no identity row exists.
func (s *Service) DisplayName(userID string) string {
	id := normalize(userID)
	if id == "" {
		return ""
	}

	var identity Identity
	err := s.db.
		Where("user_id = ?", id).
		First(&identity).
		Error
	if err != nil || identity.DisplayName == "" {
		return id
	}
	return identity.DisplayName
}
