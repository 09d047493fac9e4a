package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one regular file found under a walk root, or the error that
// ended the walk.
type Entry struct {
	Path    string
	RelPath string
	Size    int64
	ModTime time.Time
	Err     error
}

// Walker streams the regular files below a root. Hidden entries, symlinks
// and empty files are never emitted: an empty image is almost always a copy
// still in progress, and the watcher reports it once it has content.
type Walker struct {
	logger *slog.Logger
}

// NewWalker creates a walker.
func NewWalker(logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{logger: logger}
}

// Walk starts the traversal of root. The channel closes when the walk ends
// or ctx is cancelled. An unreadable root is delivered as a single Entry
// with Err set; unreadable entries deeper down are logged and skipped.
func (w *Walker) Walk(ctx context.Context, root string) <-chan Entry {
	out := make(chan Entry, 64)

	go func() {
		defer close(out)

		emit := func(e Entry) error {
			select {
			case out <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if path == root {
					return err
				}
				w.logger.Warn("skipping unreadable entry", "path", path, "error", err)
				return nil
			}

			entry, ok, skipDir := w.visit(root, path, d)
			if skipDir {
				return filepath.SkipDir
			}
			if !ok {
				return nil
			}
			return emit(entry)
		})

		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("walk failed", "root", root, "error", err)
			_ = emit(Entry{Path: root, Err: err})
		}
	}()

	return out
}

// visit decides what to do with one directory entry.
func (w *Walker) visit(root, path string, d fs.DirEntry) (entry Entry, ok, skipDir bool) {
	if IsHidden(path, root) {
		return Entry{}, false, d.IsDir()
	}
	if !d.Type().IsRegular() {
		return Entry{}, false, false
	}

	info, err := d.Info()
	if err != nil {
		w.logger.Warn("skipping file without info", "path", path, "error", err)
		return Entry{}, false, false
	}
	if info.Size() == 0 {
		w.logger.Debug("skipping empty file", "path", path)
		return Entry{}, false, false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return Entry{
		Path:    path,
		RelPath: rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, true, false
}

// IsHidden reports whether path, or any directory between root and path,
// starts with a dot. The root itself is never hidden.
func IsHidden(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for part := range strings.SplitSeq(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
