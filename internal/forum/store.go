package forum

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("forum: database handle is required")

// Store exposes the persistent category/thread/post hierarchy as explicit,
// parent-scoped queries. Lookups never search names globally: two categories
// with the same name under different parents are distinct rows to every query
// offered here.
type Store struct {
	db *gorm.DB
}

// NewStore wraps the provided database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Store{db: db}, nil
}

// RootCategory returns the single category without a parent. The root is
// created by a seed migration; its absence is a deployment fault.
func (s *Store) RootCategory(ctx context.Context) (Category, error) {
	var root Category
	err := s.db.WithContext(ctx).
		Where("parent_category_id IS NULL").
		Take(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, fmt.Errorf("%w: root category missing", ErrNotFound)
	}
	if err != nil {
		return Category{}, err
	}
	return root, nil
}

// CategoryByID loads a category by its identifier.
func (s *Store) CategoryByID(ctx context.Context, id int64) (Category, bool, error) {
	var category Category
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, false, nil
	}
	if err != nil {
		return Category{}, false, err
	}
	return category, true, nil
}

// ChildCategoryByName looks up a category by name scoped to one parent.
func (s *Store) ChildCategoryByName(ctx context.Context, parentID int64, name string) (Category, bool, error) {
	var category Category
	err := s.db.WithContext(ctx).
		Where("parent_category_id = ? AND name = ?", parentID, name).
		Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, false, nil
	}
	if err != nil {
		return Category{}, false, err
	}
	return category, true, nil
}

// ChildCategories lists the direct child categories of a parent, ordered by id.
func (s *Store) ChildCategories(ctx context.Context, parentID int64) ([]Category, error) {
	var children []Category
	err := s.db.WithContext(ctx).
		Where("parent_category_id = ?", parentID).
		Order("id ASC").
		Find(&children).Error
	if err != nil {
		return nil, err
	}
	return children, nil
}

// AllCategories lists every category in the tree, ordered by id.
func (s *Store) AllCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// ThreadByID loads a thread by its identifier.
func (s *Store) ThreadByID(ctx context.Context, id int64) (Thread, bool, error) {
	var thread Thread
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Thread{}, false, nil
	}
	if err != nil {
		return Thread{}, false, err
	}
	return thread, true, nil
}

// ThreadByName looks up a thread by name scoped to one owning category.
func (s *Store) ThreadByName(ctx context.Context, categoryID int64, name string) (Thread, bool, error) {
	var thread Thread
	err := s.db.WithContext(ctx).
		Where("category_id = ? AND name = ?", categoryID, name).
		Take(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Thread{}, false, nil
	}
	if err != nil {
		return Thread{}, false, err
	}
	return thread, true, nil
}

// ThreadsByCategory lists the threads owned by a category, ordered by id.
func (s *Store) ThreadsByCategory(ctx context.Context, categoryID int64) ([]Thread, error) {
	var threads []Thread
	err := s.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("id ASC").
		Find(&threads).Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// PostsByThread lists a thread's posts in creation order with each author's
// display name attached. Authors without an identity row fall back to their id.
func (s *Store) PostsByThread(ctx context.Context, threadID int64) ([]PostView, error) {
	var posts []PostView
	err := s.db.WithContext(ctx).
		Table("forum_posts").
		Select("forum_posts.*, COALESCE(NULLIF(user_identities.user_display_name, ''), forum_posts.author_id) AS author_name").
		Joins("LEFT JOIN user_identities ON user_identities.user_id = forum_posts.author_id").
		Where("forum_posts.thread_id = ?", threadID).
		Order("forum_posts.id ASC").
		Scan(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}
