// Package plex is a small client for the Plex Media Server HTTP API covering
// photo sections: listing, downloading and editing photo tags.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tigertag/tigertag-server/internal/ratelimit"
)

const (
	// DefaultURL is where a local Plex server listens.
	DefaultURL = "http://127.0.0.1:32400"

	// Rate limit: 10 requests per second per server, burst of 10
	defaultRPS   = 10.0
	defaultBurst = 10

	defaultTimeout = 30 * time.Second

	// photoType is the Plex metadata type for photos.
	photoType = 13
)

// Client is a rate-limited Plex API client.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

// New creates a Plex client for the server at rawURL.
func New(rawURL, token string, logger *slog.Logger) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse plex url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse plex url: %q has no scheme or host", rawURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		logger:  logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Sections lists the library sections.
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	var rc rawContainer
	if err := c.getJSON(ctx, "/library/sections", nil, &rc); err != nil {
		return nil, wrapError("sections", "", err)
	}
	return rc.MediaContainer.Directory, nil
}

// SectionByTitle finds a section by its title, ignoring case.
func (c *Client) SectionByTitle(ctx context.Context, title string) (*Section, error) {
	sections, err := c.Sections(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		if strings.EqualFold(s.Title, title) {
			return &s, nil
		}
	}
	return nil, wrapError("sections", title, ErrNotFound)
}

// Photos lists every photo in a section, albums flattened.
func (c *Client) Photos(ctx context.Context, sectionKey string) ([]Photo, error) {
	q := url.Values{"type": {strconv.Itoa(photoType)}}
	var rc rawContainer
	if err := c.getJSON(ctx, "/library/sections/"+url.PathEscape(sectionKey)+"/all", q, &rc); err != nil {
		return nil, wrapError("photos", sectionKey, err)
	}
	photos := make([]Photo, 0, len(rc.MediaContainer.Metadata))
	for _, m := range rc.MediaContainer.Metadata {
		photos = append(photos, m.toPhoto())
	}
	return photos, nil
}

// Photo fetches one item's metadata, including its tags.
func (c *Client) Photo(ctx context.Context, ratingKey string) (*Photo, error) {
	var rc rawContainer
	if err := c.getJSON(ctx, "/library/metadata/"+url.PathEscape(ratingKey), nil, &rc); err != nil {
		return nil, wrapError("metadata", ratingKey, err)
	}
	if len(rc.MediaContainer.Metadata) == 0 {
		return nil, wrapError("metadata", ratingKey, ErrNotFound)
	}
	p := rc.MediaContainer.Metadata[0].toPhoto()
	return &p, nil
}

// Download streams a part's file content into w.
func (c *Client) Download(ctx context.Context, partKey string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, partKey, nil)
	if err != nil {
		return 0, wrapError("download", partKey, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, wrapError("download", partKey, fmt.Errorf("read body: %w", err))
	}
	return n, nil
}

// RemoveTags removes tags from a photo.
func (c *Client) RemoveTags(ctx context.Context, sectionKey, ratingKey string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	escaped := make([]string, len(tags))
	for i, t := range tags {
		escaped[i] = url.QueryEscape(t)
	}
	q := c.editQuery(ratingKey)
	q.Set("tag[].tag.tag-", strings.Join(escaped, ","))
	return c.edit(ctx, sectionKey, ratingKey, q)
}

// AddTags adds tags to a photo.
func (c *Client) AddTags(ctx context.Context, sectionKey, ratingKey string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	q := c.editQuery(ratingKey)
	for i, t := range tags {
		q.Set(fmt.Sprintf("tag[%d].tag.tag", i), t)
	}
	return c.edit(ctx, sectionKey, ratingKey, q)
}

func (c *Client) editQuery(ratingKey string) url.Values {
	return url.Values{
		"type":                 {strconv.Itoa(photoType)},
		"id":                   {ratingKey},
		"includeExternalMedia": {"1"},
	}
}

func (c *Client) edit(ctx context.Context, sectionKey, ratingKey string, q url.Values) error {
	resp, err := c.do(ctx, http.MethodPut, "/library/sections/"+url.PathEscape(sectionKey)+"/all", q)
	if err != nil {
		return wrapError("edit-tags", ratingKey, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes a request with rate limiting and maps error statuses. On
// success the caller owns the response body.
func (c *Client) do(ctx context.Context, method, path string, q url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx, c.baseURL.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Product", "TigerTag")
	req.Header.Set("X-Plex-Client-Identifier", "tigertag-server")

	c.logger.Debug("plex request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusBadRequest:
		return nil, ErrBadRequest
	default:
		if resp.StatusCode >= 500 {
			return nil, ErrServer
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
