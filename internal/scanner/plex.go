package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/plex"
)

// PlexSource discovers the photos of one Plex library section. Every photo
// is downloaded to a temporary working copy that lives until the item is
// released.
type PlexSource struct {
	name    string
	client  *plex.Client
	section string
	tempDir string
	logger  *slog.Logger
}

// NewPlexSource builds a Plex source. TOKEN and SECTION are required; URL
// defaults to the local server and TEMP_DIR to the system temp directory.
func NewPlexSource(cfg config.PluginConfig, deps Deps) (Source, error) {
	token, err := cfg.Prop("TOKEN")
	if err != nil {
		return nil, err
	}
	section, err := cfg.Prop("SECTION")
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client, err := plex.New(cfg.PropOr("URL", plex.DefaultURL), token, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Key(), err)
	}
	return NewPlex(cfg.ID, client, section, cfg.PropOr("TEMP_DIR", os.TempDir()), logger), nil
}

// NewPlex creates a Plex source over an existing client.
func NewPlex(name string, client *plex.Client, section, tempDir string, logger *slog.Logger) *PlexSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlexSource{
		name:    name,
		client:  client,
		section: section,
		tempDir: tempDir,
		logger:  logger.With("scanner", name),
	}
}

// Name implements Source.
func (p *PlexSource) Name() string { return p.name }

// Close releases the Plex client.
func (p *PlexSource) Close() error {
	p.client.Close()
	return nil
}

// Scan lists the section and emits one item per downloadable image. The
// next photo is only downloaded once the previous item has been received.
func (p *PlexSource) Scan(ctx context.Context) <-chan Item {
	items := make(chan Item)

	go func() {
		defer close(items)

		send := func(item Item) bool {
			select {
			case items <- item:
				return true
			case <-ctx.Done():
				item.Release()
				return false
			}
		}

		section, err := p.client.SectionByTitle(ctx, p.section)
		if err != nil {
			send(Item{Err: fmt.Errorf("find section %q: %w", p.section, err)})
			return
		}
		photos, err := p.client.Photos(ctx, section.Key)
		if err != nil {
			send(Item{Err: fmt.Errorf("list photos of %q: %w", p.section, err)})
			return
		}
		p.logger.Info("listing section", "section", section.Title, "photos", len(photos))

		for _, photo := range photos {
			if ctx.Err() != nil {
				return
			}
			item, ok, err := p.fetch(ctx, photo)
			if err != nil {
				p.logger.Warn("failed to fetch photo", "external_id", photo.RatingKey, "error", err)
				continue
			}
			if !ok {
				continue
			}
			if !send(item) {
				return
			}
		}
	}()

	return items
}

// fetch downloads one photo into a working copy and fingerprints it.
func (p *PlexSource) fetch(ctx context.Context, photo plex.Photo) (Item, bool, error) {
	if len(photo.Parts) == 0 {
		p.logger.Debug("photo has no file", "external_id", photo.RatingKey)
		return Item{}, false, nil
	}
	part := photo.Parts[0]

	tmp, err := os.CreateTemp(p.tempDir, "tigertag-*"+path.Ext(part.File))
	if err != nil {
		return Item{}, false, fmt.Errorf("create working copy: %w", err)
	}
	remove := func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove working copy", "path", tmp.Name(), "error", err)
		}
	}

	h := sha256.New()
	_, err = p.client.Download(ctx, part.Key, io.MultiWriter(tmp, h))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		remove()
		return Item{}, false, fmt.Errorf("download %s: %w", part.Key, err)
	}

	image, mime, err := IsImage(tmp.Name())
	if err != nil || !image {
		remove()
		if err == nil {
			p.logger.Debug("ignoring non-image photo", "location", part.File, "mime", mime)
		}
		return Item{}, false, err
	}

	p.logger.Info("scanning", "location", part.File, "working_copy", tmp.Name())
	return Item{
		File: domain.FileInfo{
			Name:        path.Base(part.File),
			Path:        part.File,
			Fingerprint: hex.EncodeToString(h.Sum(nil)),
			WorkingPath: tmp.Name(),
			ExternalID:  photo.RatingKey,
		},
		release: remove,
	}, true, nil
}
