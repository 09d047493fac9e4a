package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/engine"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/store"
	"github.com/tigertag/tigertag-server/internal/syncer"
)

// Listener observes every engine computation that survived the confidence
// filter, in registration order. A PERSISTENCE error from a listener aborts
// the resource; any other error is logged and the next listener runs.
type Listener interface {
	OnTags(ctx context.Context, file domain.FileInfo, eng engine.Info, tags map[string]int) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, file domain.FileInfo, eng engine.Info, tags map[string]int) error

// OnTags implements Listener.
func (f ListenerFunc) OnTags(ctx context.Context, file domain.FileInfo, eng engine.Info, tags map[string]int) error {
	return f(ctx, file, eng, tags)
}

// StoreListener replaces the engine's tags in the catalog.
type StoreListener struct {
	tags store.TagStore
}

// NewStoreListener creates a listener writing to tags.
func NewStoreListener(tags store.TagStore) *StoreListener {
	return &StoreListener{tags: tags}
}

// OnTags implements Listener.
func (l *StoreListener) OnTags(ctx context.Context, file domain.FileInfo, eng engine.Info, tags map[string]int) error {
	if err := l.tags.ReplaceTags(ctx, file.Path, eng.Name, tags); err != nil {
		return errors.Persistence(fmt.Sprintf("replace %s tags of %s", eng.Name, file.Path), err)
	}
	return nil
}

// SyncListener reconciles resources that have an external identity.
type SyncListener struct {
	manager *syncer.Manager
	closers []io.Closer
}

// NewSyncListener creates a listener over the given sync targets.
func NewSyncListener(manager *syncer.Manager, closers ...io.Closer) *SyncListener {
	return &SyncListener{manager: manager, closers: closers}
}

// OnTags implements Listener.
func (l *SyncListener) OnTags(ctx context.Context, file domain.FileInfo, eng engine.Info, tags map[string]int) error {
	if file.ExternalID == "" {
		return nil
	}
	return l.manager.Reconcile(ctx, file.ExternalID, eng, domain.SortedNames(tags))
}

// Close releases the sync target clients.
func (l *SyncListener) Close() error {
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ConsoleListener prints every computation as YAML.
type ConsoleListener struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleListener creates a listener printing to out.
func NewConsoleListener(out io.Writer) *ConsoleListener {
	return &ConsoleListener{out: out}
}

type consoleTag struct {
	Confidence int `yaml:"confidence"`
}

// OnTags implements Listener.
func (l *ConsoleListener) OnTags(_ context.Context, file domain.FileInfo, eng engine.Info, tags map[string]int) error {
	doc := make(map[string]consoleTag, len(tags))
	for name, confidence := range tags {
		doc[name] = consoleTag{Confidence: confidence}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("render tags: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintf(l.out, "path: %s\nengine: %s\nengine prefix: %s\ntags:\n%s\n", file.Path, eng.Name, eng.Prefix, data)
	return err
}
