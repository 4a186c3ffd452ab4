package forum

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ResolvedPath is the outcome of a successful path resolution: the ordered
// category chain from the root to the deepest matched category, plus either a
// terminal thread view or the listings needed to render the category page.
type ResolvedPath struct {
	Categories      []Category
	Thread          *ThreadView
	ChildCategories []Category
	Threads         []Thread
}

// Current returns the deepest matched category.
func (p ResolvedPath) Current() Category {
	return p.Categories[len(p.Categories)-1]
}

// Resolver walks the category tree one path segment at a time. Resolution is
// strict: a segment either matches a category under the current parent (or, at
// the final segment only, a thread in it) or the whole path fails with
// ErrNotFound. There is no backtracking and no global name search.
type Resolver struct {
	store  *Store
	logger *zap.Logger
}

// NewResolver constructs a resolver over the provided store.
func NewResolver(store *Store, logger *zap.Logger) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("forum: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}, nil
}

// Resolve maps ordered, already percent-decoded path segments onto the tree.
// Paths longer than MaxPathDepth fail before any store access. An empty
// segment list resolves to the root category alone.
func (r *Resolver) Resolve(ctx context.Context, segments []string) (ResolvedPath, error) {
	if len(segments) > MaxPathDepth {
		return ResolvedPath{}, fmt.Errorf("%w: path exceeds %d segments", ErrNotFound, MaxPathDepth)
	}

	root, err := r.store.RootCategory(ctx)
	if err != nil {
		return ResolvedPath{}, err
	}

	chain := []Category{root}
	current := root

	for index, segment := range segments {
		category, found, err := r.store.ChildCategoryByName(ctx, current.ID, segment)
		if err != nil {
			return ResolvedPath{}, err
		}
		if found {
			chain = append(chain, category)
			current = category
			continue
		}

		if index != len(segments)-1 {
			return ResolvedPath{}, fmt.Errorf("%w: no category %q under %q", ErrNotFound, segment, current.Name)
		}

		// The final segment may denote a thread instead of a category.
		thread, found, err := r.store.ThreadByName(ctx, current.ID, segment)
		if err != nil {
			return ResolvedPath{}, err
		}
		if !found {
			return ResolvedPath{}, fmt.Errorf("%w: no category or thread %q under %q", ErrNotFound, segment, current.Name)
		}

		posts, err := r.store.PostsByThread(ctx, thread.ID)
		if err != nil {
			return ResolvedPath{}, err
		}

		r.logger.Debug("resolved thread path",
			zap.Int64("thread_id", thread.ID),
			zap.Int("depth", len(segments)))
		return ResolvedPath{
			Categories: chain,
			Thread:     &ThreadView{Thread: thread, Posts: posts},
		}, nil
	}

	children, err := r.store.ChildCategories(ctx, current.ID)
	if err != nil {
		return ResolvedPath{}, err
	}
	threads, err := r.store.ThreadsByCategory(ctx, current.ID)
	if err != nil {
		return ResolvedPath{}, err
	}

	r.logger.Debug("resolved category path",
		zap.Int64("category_id", current.ID),
		zap.Int("depth", len(segments)))
	return ResolvedPath{
		Categories:      chain,
		ChildCategories: children,
		Threads:         threads,
	}, nil
}
