package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a thread, message or entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBadCursor is returned for continuation cursors a store did not issue.
	ErrBadCursor = errors.New("malformed cursor")
)
