package store

import "errors"

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates that a pending notification with the same source
// and notification type already exists.
var ErrDuplicate = errors.New("duplicate pending notification")
