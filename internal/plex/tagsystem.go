package plex

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TagSystem exposes the photo tags of one section as an external tag store.
type TagSystem struct {
	client  *Client
	section string

	lookups    singleflight.Group
	mu         sync.RWMutex
	sectionKey string
}

// NewTagSystem creates a TagSystem for the section with the given title.
func NewTagSystem(client *Client, sectionTitle string) *TagSystem {
	return &TagSystem{client: client, section: sectionTitle}
}

// Tags returns the photo's current tags as Plex reports them.
func (t *TagSystem) Tags(ctx context.Context, ratingKey string) ([]string, error) {
	p, err := t.client.Photo(ctx, ratingKey)
	if err != nil {
		return nil, err
	}
	return p.Tags, nil
}

// RemoveTags removes tags from the photo.
func (t *TagSystem) RemoveTags(ctx context.Context, ratingKey string, tags []string) error {
	key, err := t.resolveSection(ctx)
	if err != nil {
		return err
	}
	return t.client.RemoveTags(ctx, key, ratingKey, tags)
}

// AddTags adds tags to the photo.
func (t *TagSystem) AddTags(ctx context.Context, ratingKey string, tags []string) error {
	key, err := t.resolveSection(ctx)
	if err != nil {
		return err
	}
	return t.client.AddTags(ctx, key, ratingKey, tags)
}

// Refresh reloads the photo. Plex re-adds removed tags when an add follows
// a remove without a reload in between.
func (t *TagSystem) Refresh(ctx context.Context, ratingKey string) error {
	_, err := t.client.Photo(ctx, ratingKey)
	return err
}

// resolveSection looks the section key up once. Concurrent callers share
// one lookup; failures are retried on the next call.
func (t *TagSystem) resolveSection(ctx context.Context) (string, error) {
	t.mu.RLock()
	key := t.sectionKey
	t.mu.RUnlock()
	if key != "" {
		return key, nil
	}

	v, err, _ := t.lookups.Do(t.section, func() (any, error) {
		s, err := t.client.SectionByTitle(ctx, t.section)
		if err != nil {
			return "", err
		}
		t.mu.Lock()
		t.sectionKey = s.Key
		t.mu.Unlock()
		return s.Key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
