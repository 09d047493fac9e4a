package plex

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", name, err)
	}
	return data
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, "secret-token", slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	require.NoError(t, err)
	client.http = server.Client()
	t.Cleanup(client.Close)

	return client
}

func TestClient_SectionByTitle(t *testing.T) {
	fixture := loadFixture(t, "sections.json")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("X-Plex-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write(fixture)
	})

	s, err := client.SectionByTitle(context.Background(), "family photos")
	require.NoError(t, err)
	assert.Equal(t, "3", s.Key)

	_, err = client.SectionByTitle(context.Background(), "Music")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Photos(t *testing.T) {
	fixture := loadFixture(t, "photos.json")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections/3/all", r.URL.Path)
		assert.Equal(t, "13", r.URL.Query().Get("type"))
		w.Write(fixture)
	})

	photos, err := client.Photos(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "4711", photos[0].RatingKey)
	assert.Equal(t, "/photos/2021/smile.jpg", photos[0].File())
	assert.Equal(t, "/library/parts/902/1600000000/file.png", photos[1].Parts[0].Key)
}

func TestClient_PhotoTags(t *testing.T) {
	fixture := loadFixture(t, "metadata.json")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/metadata/4711", r.URL.Path)
		w.Write(fixture)
	})

	p, err := client.Photo(context.Background(), "4711")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ttf_Roman", "Manual_favorite"}, p.Tags)
}

func TestClient_Download(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/parts/901/1600000000/file.jpg", r.URL.Path)
		w.Write([]byte("jpg"))
	})

	var buf bytes.Buffer
	n, err := client.Download(context.Background(), "/library/parts/901/1600000000/file.jpg", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, "jpg", buf.String())
}

func TestClient_EditTags(t *testing.T) {
	var queries []map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/library/sections/3/all", r.URL.Path)
		queries = append(queries, r.URL.Query())
	})

	require.NoError(t, client.RemoveTags(context.Background(), "3", "4711", []string{"Ttf_Roman", "ttf_a b"}))
	require.NoError(t, client.AddTags(context.Background(), "3", "4711", []string{"ttf_Poppy", "ttf_Sky"}))
	require.NoError(t, client.AddTags(context.Background(), "3", "4711", nil)) // no request

	require.Len(t, queries, 2)
	assert.Equal(t, "4711", queries[0]["id"][0])
	assert.Equal(t, "13", queries[0]["type"][0])
	assert.Equal(t, "Ttf_Roman,ttf_a+b", queries[0]["tag[].tag.tag-"][0])
	assert.Equal(t, "ttf_Poppy", queries[1]["tag[0].tag.tag"][0])
	assert.Equal(t, "ttf_Sky", queries[1]["tag[1].tag.tag"][0])
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"server error", http.StatusBadGateway, ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			_, err := client.Photo(context.Background(), "1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var plexErr *Error
			require.ErrorAs(t, err, &plexErr)
			assert.Equal(t, "metadata", plexErr.Op)
		})
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not a url", "t", slog.Default())
	assert.Error(t, err)

	c, err := New("", "t", slog.Default())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "127.0.0.1:32400", c.baseURL.Host)
}

func TestTagSystem(t *testing.T) {
	sections := loadFixture(t, "sections.json")
	metadata := loadFixture(t, "metadata.json")
	var sectionLookups, edits int

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/library/sections":
			sectionLookups++
			w.Write(sections)
		case r.URL.Path == "/library/metadata/4711":
			w.Write(metadata)
		case r.Method == http.MethodPut && r.URL.Path == "/library/sections/3/all":
			edits++
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ts := NewTagSystem(client, "Family Photos")
	ctx := context.Background()

	tags, err := ts.Tags(ctx, "4711")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ttf_Roman", "Manual_favorite"}, tags)

	require.NoError(t, ts.RemoveTags(ctx, "4711", []string{"Ttf_Roman"}))
	require.NoError(t, ts.Refresh(ctx, "4711"))
	require.NoError(t, ts.AddTags(ctx, "4711", []string{"ttf_Poppy"}))

	assert.Equal(t, 2, edits)
	assert.Equal(t, 1, sectionLookups, "section key is cached")
}
