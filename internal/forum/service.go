package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var noOpLogger = zap.NewNop()

// ServiceConfig describes the dependencies of the mutation engine.
type ServiceConfig struct {
	Database *gorm.DB
	Store    *Store
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service authorizes and executes structural mutations on the forum tree.
// Every operation takes an explicit actor identifier; an empty actor fails
// with ErrUnauthorized before any store access.
type Service struct {
	db     *gorm.DB
	store  *Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the mutation engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	store := cfg.Store
	if store == nil {
		var err error
		store, err = NewStore(cfg.Database)
		if err != nil {
			return nil, err
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		store:  store,
		clock:  clock,
		logger: logger,
	}, nil
}

func requireActor(actorID string) (string, error) {
	trimmed := strings.TrimSpace(actorID)
	if trimmed == "" {
		return "", fmt.Errorf("%w: missing actor", ErrUnauthorized)
	}
	return trimmed, nil
}

// ListCategories returns the full category tree, ordered by id. Move targets
// are picked from this listing.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.store.AllCategories(ctx)
}

// CreateCategory inserts a new category under an existing parent.
func (s *Service) CreateCategory(ctx context.Context, name string, parentCategoryID int64, actorID string) (Category, error) {
	actor, err := requireActor(actorID)
	if err != nil {
		return Category{}, err
	}
	title, err := NewTitle(name)
	if err != nil {
		return Category{}, err
	}

	_, found, err := s.store.CategoryByID(ctx, parentCategoryID)
	if err != nil {
		return Category{}, err
	}
	if !found {
		return Category{}, fmt.Errorf("%w: parent category %d", ErrNotFound, parentCategoryID)
	}
	if _, exists, err := s.store.ChildCategoryByName(ctx, parentCategoryID, title.String()); err != nil {
		return Category{}, err
	} else if exists {
		return Category{}, fmt.Errorf("%w: category %q", ErrDuplicateName, title.String())
	}

	parentID := parentCategoryID
	category := Category{
		Name:             title.String(),
		ParentCategoryID: &parentID,
		CreatedBy:        actor,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		s.logError("create_category", err, zap.String("actor_id", actor))
		return Category{}, err
	}

	s.logger.Info("category created",
		zap.Int64("category_id", category.ID),
		zap.Int64("parent_category_id", parentCategoryID),
		zap.String("actor_id", actor))
	return category, nil
}

// CreateThread creates a thread together with its first post. The two writes
// share one transaction: a failed post insert leaves no orphan thread behind.
func (s *Service) CreateThread(ctx context.Context, name string, categoryID int64, firstPostContent string, actorID string) (Thread, Post, error) {
	actor, err := requireActor(actorID)
	if err != nil {
		return Thread{}, Post{}, err
	}
	title, err := NewTitle(name)
	if err != nil {
		return Thread{}, Post{}, err
	}
	content, err := NewContent(firstPostContent)
	if err != nil {
		return Thread{}, Post{}, err
	}

	_, found, err := s.store.CategoryByID(ctx, categoryID)
	if err != nil {
		return Thread{}, Post{}, err
	}
	if !found {
		return Thread{}, Post{}, fmt.Errorf("%w: category %d", ErrNotFound, categoryID)
	}
	if _, exists, err := s.store.ThreadByName(ctx, categoryID, title.String()); err != nil {
		return Thread{}, Post{}, err
	} else if exists {
		return Thread{}, Post{}, fmt.Errorf("%w: thread %q", ErrDuplicateName, title.String())
	}

	now := s.clock().UTC().Unix()
	thread := Thread{
		Name:             title.String(),
		CategoryID:       categoryID,
		AuthorID:         actor,
		CreatedAtSeconds: now,
	}
	post := Post{
		Content:          content.String(),
		AuthorID:         actor,
		CreatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&thread).Error; err != nil {
			return err
		}
		post.ThreadID = thread.ID
		return tx.Create(&post).Error
	})
	if txErr != nil {
		s.logError("create_thread", txErr, zap.String("actor_id", actor))
		return Thread{}, Post{}, txErr
	}

	s.logger.Info("thread created",
		zap.Int64("thread_id", thread.ID),
		zap.Int64("category_id", categoryID),
		zap.String("actor_id", actor))
	return thread, post, nil
}

// CreatePost appends a reply to an existing thread.
func (s *Service) CreatePost(ctx context.Context, content string, threadID int64, actorID string) (Post, error) {
	actor, err := requireActor(actorID)
	if err != nil {
		return Post{}, err
	}
	validated, err := NewContent(content)
	if err != nil {
		return Post{}, err
	}

	_, found, err := s.store.ThreadByID(ctx, threadID)
	if err != nil {
		return Post{}, err
	}
	if !found {
		return Post{}, fmt.Errorf("%w: thread %d", ErrNotFound, threadID)
	}

	post := Post{
		Content:          validated.String(),
		ThreadID:         threadID,
		AuthorID:         actor,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		s.logError("create_post", err, zap.String("actor_id", actor))
		return Post{}, err
	}

	return post, nil
}

// DeleteThread removes a thread and all of its posts. Only the thread's
// author may delete it. Posts go first to keep referential integrity.
func (s *Service) DeleteThread(ctx context.Context, threadID int64, actorID string) (Thread, error) {
	actor, err := requireActor(actorID)
	if err != nil {
		return Thread{}, err
	}

	thread, found, err := s.store.ThreadByID(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	if !found {
		return Thread{}, fmt.Errorf("%w: thread %d", ErrNotFound, threadID)
	}
	if thread.AuthorID != actor {
		return Thread{}, fmt.Errorf("%w: only the author may delete a thread", ErrForbidden)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("thread_id = ?", threadID).Delete(&Post{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", threadID).Delete(&Thread{}).Error
	})
	if txErr != nil {
		s.logError("delete_thread", txErr,
			zap.Int64("thread_id", threadID),
			zap.String("actor_id", actor))
		return Thread{}, txErr
	}

	s.logger.Info("thread deleted",
		zap.Int64("thread_id", threadID),
		zap.String("actor_id", actor))
	return thread, nil
}

// MoveThread re-parents a thread into another category. Authorization is
// checked before the target category lookup, so a non-author never learns
// whether the target exists.
func (s *Service) MoveThread(ctx context.Context, threadID, targetCategoryID int64, actorID string) (Thread, error) {
	actor, err := requireActor(actorID)
	if err != nil {
		return Thread{}, err
	}

	thread, found, err := s.store.ThreadByID(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	if !found {
		return Thread{}, fmt.Errorf("%w: thread %d", ErrNotFound, threadID)
	}
	if thread.AuthorID != actor {
		return Thread{}, fmt.Errorf("%w: only the author may move a thread", ErrForbidden)
	}

	_, found, err = s.store.CategoryByID(ctx, targetCategoryID)
	if err != nil {
		return Thread{}, err
	}
	if !found {
		return Thread{}, fmt.Errorf("%w: target category %d", ErrNotFound, targetCategoryID)
	}

	// The target must not already own a same-named thread. A match on the
	// moved thread itself means a same-category move, which is a no-op.
	if existing, exists, err := s.store.ThreadByName(ctx, targetCategoryID, thread.Name); err != nil {
		return Thread{}, err
	} else if exists && existing.ID != thread.ID {
		return Thread{}, fmt.Errorf("%w: thread %q", ErrDuplicateName, thread.Name)
	}

	updateErr := s.db.WithContext(ctx).
		Model(&Thread{}).
		Where("id = ?", threadID).
		Update("category_id", targetCategoryID).Error
	if updateErr != nil {
		s.logError("move_thread", updateErr,
			zap.Int64("thread_id", threadID),
			zap.String("actor_id", actor))
		return Thread{}, updateErr
	}

	thread.CategoryID = targetCategoryID
	s.logger.Info("thread moved",
		zap.Int64("thread_id", threadID),
		zap.Int64("target_category_id", targetCategoryID),
		zap.String("actor_id", actor))
	return thread, nil
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	if errors.Is(err, context.Canceled) {
		return
	}
	attrs := append([]zap.Field{zap.String("operation", operation), zap.Error(err)}, fields...)
	s.logger.Error("forum mutation failed", attrs...)
}
