package forum

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxPathDepth bounds forum paths to three nested categories plus a thread.
	MaxPathDepth = 4

	minTitleLength   = 2
	maxTitleLength   = 50
	maxContentLength = 2000
)

var (
	// ErrInvalidTitle indicates a category or thread name outside the accepted bounds.
	ErrInvalidTitle = errors.New("forum: invalid title")
	// ErrInvalidContent indicates post content that is empty or exceeds storage bounds.
	ErrInvalidContent = errors.New("forum: invalid post content")
)

// Title represents a validated category or thread name.
type Title string

// NewTitle validates raw input and returns a Title.
func NewTitle(rawInput string) (Title, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) < minTitleLength {
		return "", fmt.Errorf("%w: shorter than %d characters", ErrInvalidTitle, minTitleLength)
	}
	if len(trimmed) > maxTitleLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxTitleLength)
	}
	return Title(trimmed), nil
}

// String returns the underlying name.
func (t Title) String() string {
	return string(t)
}

// Content represents validated post content.
type Content string

// NewContent validates raw input and returns a Content.
func NewContent(rawInput string) (Content, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidContent)
	}
	if len(trimmed) > maxContentLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidContent, maxContentLength)
	}
	return Content(trimmed), nil
}

// String returns the underlying content.
func (c Content) String() string {
	return string(c)
}

// Category models one node of the forum tree. The single root category has a
// NULL parent; every other category's parent chain terminates at the root.
type Category struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex:idx_categories_name_parent,priority:1"`
	ParentCategoryID *int64 `gorm:"column:parent_category_id;uniqueIndex:idx_categories_name_parent,priority:2"`
	CreatedBy        string `gorm:"column:created_by;size:190"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "forum_categories"
}

// IsRoot reports whether the category is the tree root.
func (c Category) IsRoot() bool {
	return c.ParentCategoryID == nil
}

// Thread models a discussion thread owned by exactly one category.
type Thread struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex:idx_threads_name_category,priority:1"`
	CategoryID       int64  `gorm:"column:category_id;not null;uniqueIndex:idx_threads_name_category,priority:2;index:idx_threads_category"`
	AuthorID         string `gorm:"column:author_id;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Thread) TableName() string {
	return "forum_threads"
}

// Post models a single message inside a thread.
type Post struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Content          string `gorm:"column:content;type:text;not null"`
	ThreadID         int64  `gorm:"column:thread_id;not null;index:idx_posts_thread"`
	AuthorID         string `gorm:"column:author_id;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "forum_posts"
}

// PostView is a post decorated with its author's display name for rendering.
type PostView struct {
	Post
	AuthorName string `gorm:"column:author_name"`
}

// ThreadView bundles a thread with its posts for a resolved thread page.
type ThreadView struct {
	Thread Thread
	Posts  []PostView
}
