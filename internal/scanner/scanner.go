// Package scanner discovers resources for the tagging pipeline: files on
// disk or photos in a Plex library.
package scanner

import (
	"context"
	"log/slog"
	"sort"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/errors"
)

// Item is one discovered resource, or a discovery error.
type Item struct {
	File domain.FileInfo
	Err  error

	release func()
}

// NewItem creates an item whose Release calls release.
func NewItem(file domain.FileInfo, release func()) Item {
	return Item{File: file, release: release}
}

// Release frees anything held for the item, such as a temporary working
// copy. Safe to call on any item.
func (i Item) Release() {
	if i.release != nil {
		i.release()
	}
}

// Source streams discovered resources. The channel closes when the source
// is exhausted or ctx is canceled.
type Source interface {
	Name() string
	Scan(ctx context.Context) <-chan Item
}

// Deps are the shared collaborators handed to source constructors.
type Deps struct {
	Logger *slog.Logger
}

// Constructor builds a source from its plugin block.
type Constructor func(cfg config.PluginConfig, deps Deps) (Source, error)

// Factory maps a capability key (the SCANNER_<ID>_NAME value) to a constructor.
type Factory map[string]Constructor

// DefaultFactory knows every built-in source.
func DefaultFactory() Factory {
	return Factory{
		"directory": NewDirectorySource,
		"plex":      NewPlexSource,
	}
}

// Keys returns the known capability keys, sorted.
func (f Factory) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildSources constructs every enabled scanner plugin, in plugin order.
func BuildSources(f Factory, plugins []config.PluginConfig, deps Deps) ([]Source, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	var sources []Source
	for _, p := range plugins {
		if p.Kind != config.KindScanner {
			continue
		}
		if !p.Enabled {
			deps.Logger.Info("scanner disabled", "scanner", p.ID)
			continue
		}
		ctor, ok := f[p.Name]
		if !ok {
			return nil, errors.Configurationf("unknown scanner %q for %s (known: %v)", p.Name, p.Key(), f.Keys())
		}
		src, err := ctor(p, deps)
		if err != nil {
			return nil, err
		}
		deps.Logger.Info("scanner registered", "scanner", p.ID, "kind", p.Name)
		sources = append(sources, src)
	}
	return sources, nil
}
