package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/plex"
	"github.com/tigertag/tigertag-server/internal/store"
	"github.com/tigertag/tigertag-server/internal/syncer"
)

// StasherDeps are the collaborators handed to BuildListeners.
type StasherDeps struct {
	Logger *slog.Logger
	Stdout io.Writer
}

// stasherKinds are the known STASHER_<ID>_NAME values.
var stasherKinds = []string{"console", "plex"}

// BuildListeners assembles the listener chain: the catalog first, then one
// sync listener over every enabled plex stasher, then any console stashers.
func BuildListeners(plugins []config.PluginConfig, tags store.TagStore, deps StasherDeps) ([]Listener, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}

	var (
		writers  []*syncer.Writer
		closers  []io.Closer
		consoles []Listener
	)
	for _, p := range plugins {
		if p.Kind != config.KindStasher {
			continue
		}
		if !p.Enabled {
			deps.Logger.Info("stasher disabled", "stasher", p.ID)
			continue
		}
		switch p.Name {
		case "plex":
			w, c, err := newPlexWriter(p, deps.Logger)
			if err != nil {
				return nil, err
			}
			writers = append(writers, w)
			closers = append(closers, c)
		case "console":
			consoles = append(consoles, NewConsoleListener(deps.Stdout))
		default:
			return nil, errors.Configurationf("unknown stasher %q for %s (known: %v)", p.Name, p.Key(), stasherKinds)
		}
		deps.Logger.Info("stasher registered", "stasher", p.ID, "kind", p.Name)
	}

	listeners := []Listener{
		NewStoreListener(tags),
		NewSyncListener(syncer.NewManager(deps.Logger, writers...), closers...),
	}
	return append(listeners, consoles...), nil
}

type clientCloser struct{ c *plex.Client }

func (c clientCloser) Close() error {
	c.c.Close()
	return nil
}

func newPlexWriter(p config.PluginConfig, logger *slog.Logger) (*syncer.Writer, io.Closer, error) {
	token, err := p.Prop("TOKEN")
	if err != nil {
		return nil, nil, err
	}
	section, err := p.Prop("SECTION")
	if err != nil {
		return nil, nil, err
	}
	client, err := plex.New(p.PropOr("URL", plex.DefaultURL), token, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", p.Key(), err)
	}
	return syncer.NewWriter(p.ID, plex.NewTagSystem(client, section), logger), clientCloser{client}, nil
}
