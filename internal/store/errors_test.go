package store_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tigertag/tigertag-server/internal/store"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *store.Error
		want string
	}{
		{"sentinel", store.ErrNotFound, "not found"},
		{"resource", store.NotFound("resource", "/photos/smile.png"), "resource not found: /photos/smile.png"},
		{"cursor with cause", store.ErrInvalidCursor.WithCause(errors.New("bad base64")), "cursor invalid: bad base64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsMatchesByStatus(t *testing.T) {
	err := fmt.Errorf("lookup: %w", store.NotFound("tag", "ita_smile"))

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, err, store.NotFound("tag", ""))
	assert.NotErrorIs(t, err, store.NotFound("resource", ""))
	assert.NotErrorIs(t, err, store.ErrAlreadyExists)
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := store.NotFound("resource", "res-1").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusNotFound, err.HTTPCode())
}
