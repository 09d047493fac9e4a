package store

import (
	"net/http"
	"strings"
)

// Error is a catalog lookup or constraint failure for one entity key.
// Status is the HTTP status the admin API answers with.
type Error struct {
	Status int
	Entity string // "resource", "tag", "cursor"; empty on the sentinels
	Key    string // id, location or tag name involved
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Entity != "" {
		b.WriteString(e.Entity)
		b.WriteByte(' ')
	}
	b.WriteString(reason(e.Status))
	if e.Key != "" {
		b.WriteString(": ")
		b.WriteString(e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on status. A sentinel without an entity matches every entity,
// so errors.Is(err, ErrNotFound) holds for any missing row.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Status != e.Status {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

// HTTPCode returns the HTTP status code associated with this error.
func (e *Error) HTTPCode() int { return e.Status }

// For returns a copy naming the entity and key involved.
func (e *Error) For(entity, key string) *Error {
	return &Error{Status: e.Status, Entity: entity, Key: key, Err: e.Err}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Status: e.Status, Entity: e.Entity, Key: e.Key, Err: err}
}

func reason(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "already exists"
	case http.StatusBadRequest:
		return "invalid"
	default:
		return strings.ToLower(http.StatusText(status))
	}
}

// Sentinel errors.
var (
	ErrNotFound      = &Error{Status: http.StatusNotFound}
	ErrAlreadyExists = &Error{Status: http.StatusConflict}
	ErrInvalidCursor = &Error{Status: http.StatusBadRequest, Entity: "cursor"}
)

// NotFound reports a missing resource or tag.
func NotFound(entity, key string) *Error {
	return ErrNotFound.For(entity, key)
}
