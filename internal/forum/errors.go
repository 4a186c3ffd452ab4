package forum

import "errors"

var (
	// ErrNotFound indicates a path segment, thread or category that does not exist.
	ErrNotFound = errors.New("forum: not found")
	// ErrUnauthorized indicates a mutation attempted without an authenticated actor.
	ErrUnauthorized = errors.New("forum: unauthorized")
	// ErrForbidden indicates an authenticated actor who does not own the resource.
	ErrForbidden = errors.New("forum: forbidden")
	// ErrDuplicateName indicates a sibling category or thread with the same name.
	ErrDuplicateName = errors.New("forum: duplicate sibling name")
)
