package store

import (
	"encoding/base64"
	"strconv"
)

// PaginationParams contains pagination request parameters.
type PaginationParams struct {
	Limit  int    // Items per page (defaults to 100, capped at 1000)
	Cursor string // Opaque cursor for the next page (empty for the first page)
}

// PaginatedResult contains one page of items and the cursor for the next.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"` // Empty if no more pages
	HasMore    bool   `json:"has_more"`
}

// DefaultPaginationParams returns the first page with the default limit.
func DefaultPaginationParams() PaginationParams {
	return PaginationParams{Limit: 100}
}

// Validate clamps the limit into range.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
}

// Offset decodes the cursor into a row offset.
func (p PaginationParams) Offset() (int, error) {
	return DecodeCursor(p.Cursor)
}

// EncodeCursor creates an opaque cursor from a row offset.
func EncodeCursor(offset int) string {
	if offset <= 0 {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodeCursor decodes a cursor back to a row offset.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor.WithCause(err)
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0, ErrInvalidCursor.For("cursor", cursor)
	}
	return offset, nil
}

// Paginate builds a result from a page fetched with limit+1 rows, which is
// how callers detect whether another page exists.
func Paginate[T any](fetched []T, params PaginationParams, offset int) PaginatedResult[T] {
	result := PaginatedResult[T]{Items: fetched}
	if len(fetched) > params.Limit {
		result.Items = fetched[:params.Limit]
		result.HasMore = true
		result.NextCursor = EncodeCursor(offset + params.Limit)
	}
	return result
}
