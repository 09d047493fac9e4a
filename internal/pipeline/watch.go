package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/scanner"
	"github.com/tigertag/tigertag-server/internal/watcher"
)

// Watch feeds settled watcher events for files under the given directory
// sources into OnResource until ctx is done or events is closed. Removals are
// ignored. Per-file failures are logged; a persistence error is returned.
func (o *Orchestrator) Watch(ctx context.Context, events <-chan watcher.Event, dirs ...*scanner.DirectorySource) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type == watcher.EventRemoved {
				continue
			}
			if err := o.handleEvent(ctx, ev, dirs); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev watcher.Event, dirs []*scanner.DirectorySource) error {
	logger := o.logger.With("path", ev.Path, "event", ev.Type.String())

	dir := owningSource(ev.Path, dirs)
	if dir == nil {
		logger.Debug("event outside directory sources")
		return nil
	}

	file, ok, err := dir.Inspect(ev.Path)
	if err != nil {
		logger.Warn("failed to inspect changed file", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	outcome, err := o.OnResource(ctx, file)
	if err != nil {
		if errors.Is(err, errors.ErrPersistence) {
			return err
		}
		logger.Error("failed to tag changed file", "error", err)
		return nil
	}
	logger.Info("tagged changed file", "source", dir.Name(), "outcome", string(outcome))
	return nil
}

// owningSource returns the source whose root contains path.
func owningSource(path string, dirs []*scanner.DirectorySource) *scanner.DirectorySource {
	for _, d := range dirs {
		rel, err := filepath.Rel(d.Root(), path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return d
	}
	return nil
}
