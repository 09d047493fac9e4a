package plex

import (
	"errors"
	"fmt"
)

// Sentinel errors for Plex API operations.
var (
	ErrNotFound     = errors.New("plex: not found")
	ErrUnauthorized = errors.New("plex: unauthorized, check the token")
	ErrBadRequest   = errors.New("plex: bad request")
	ErrServer       = errors.New("plex: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op  string // Operation: "sections", "photos", "metadata", "edit-tags", "download"
	Key string // Section or rating key, if applicable
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("plex %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("plex %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}
