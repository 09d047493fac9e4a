package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/domain"
)

// DirectorySource discovers image files under a root directory.
type DirectorySource struct {
	name   string
	root   string
	walker *Walker
	logger *slog.Logger
}

// NewDirectorySource builds a directory source. PATH is required.
func NewDirectorySource(cfg config.PluginConfig, deps Deps) (Source, error) {
	root, err := cfg.Prop("PATH")
	if err != nil {
		return nil, err
	}
	return NewDirectory(cfg.ID, root, deps.Logger)
}

// NewDirectory creates a directory source rooted at root.
func NewDirectory(name, root string, logger *slog.Logger) (*DirectorySource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("scanner", name)
	return &DirectorySource{
		name:   name,
		root:   abs,
		walker: NewWalker(logger),
		logger: logger,
	}, nil
}

// Name implements Source.
func (d *DirectorySource) Name() string { return d.name }

// Root returns the absolute directory being scanned.
func (d *DirectorySource) Root() string { return d.root }

// Scan walks the root and emits every image with its content fingerprint.
// Non-image files are skipped.
func (d *DirectorySource) Scan(ctx context.Context) <-chan Item {
	items := make(chan Item)

	go func() {
		defer close(items)

		for entry := range d.walker.Walk(ctx, d.root) {
			var item Item
			if entry.Err != nil {
				item = Item{Err: entry.Err}
			} else {
				info, ok, err := d.Inspect(entry.Path)
				switch {
				case err != nil:
					d.logger.Warn("failed to inspect file", "path", entry.Path, "error", err)
					continue
				case !ok:
					continue
				}
				item = Item{File: info}
			}

			select {
			case items <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	return items
}

// Inspect fingerprints the file at path. ok is false when the file is not
// an image or lives under a hidden directory.
func (d *DirectorySource) Inspect(path string) (domain.FileInfo, bool, error) {
	if IsHidden(path, d.root) {
		return domain.FileInfo{}, false, nil
	}
	image, mime, err := IsImage(path)
	if err != nil {
		return domain.FileInfo{}, false, err
	}
	if !image {
		d.logger.Debug("ignoring non-image file", "path", path, "mime", mime)
		return domain.FileInfo{}, false, nil
	}

	fp, err := FingerprintFile(path)
	if err != nil {
		return domain.FileInfo{}, false, err
	}
	d.logger.Debug("scanned", "path", path, "mime", mime)
	return domain.FileInfo{
		Name:        filepath.Base(path),
		Path:        path,
		Fingerprint: fp,
	}, true, nil
}
