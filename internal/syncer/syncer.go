// Package syncer writes engine tags back to external tag-bearing systems,
// touching only the tags that carry the engine's prefix.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/text/cases"

	"github.com/tigertag/tigertag-server/internal/engine"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/metrics"
)

// TagSystem is an external system holding free-form tags per entity.
type TagSystem interface {
	Tags(ctx context.Context, externalID string) ([]string, error)
	RemoveTags(ctx context.Context, externalID string, tags []string) error
	AddTags(ctx context.Context, externalID string, tags []string) error
}

// Refresher is implemented by systems that must reload an entity between
// remove and add, otherwise removed tags come back.
type Refresher interface {
	Refresh(ctx context.Context, externalID string) error
}

// Diff is the change set for one (entity, engine) pair.
type Diff struct {
	Remove []string
	Add    []string
}

// Empty reports whether there is nothing to write.
func (d Diff) Empty() bool {
	return len(d.Remove) == 0 && len(d.Add) == 0
}

// Plan partitions current into the tags owned by eng and the rest, then
// returns owned-but-not-wanted as Remove and wanted-but-not-owned as Add.
// Comparison is case-insensitive; Remove keeps the external system's casing.
func Plan(current []string, eng engine.Info, wanted []string) Diff {
	fold := cases.Fold()

	owned := make(map[string]string)
	for _, tag := range current {
		if eng.Owns(tag) {
			owned[fold.String(tag)] = tag
		}
	}

	want := make(map[string]string, len(wanted))
	for _, tag := range wanted {
		want[fold.String(tag)] = tag
	}

	var d Diff
	for key, tag := range owned {
		if _, keep := want[key]; !keep {
			d.Remove = append(d.Remove, tag)
		}
	}
	for key, tag := range want {
		if _, have := owned[key]; !have {
			d.Add = append(d.Add, tag)
		}
	}
	sort.Strings(d.Remove)
	sort.Strings(d.Add)
	return d
}

// Writer reconciles one external system.
type Writer struct {
	name   string
	system TagSystem
	logger *slog.Logger
}

// NewWriter creates a Writer; name identifies the target in logs and metrics.
func NewWriter(name string, system TagSystem, logger *slog.Logger) *Writer {
	return &Writer{name: name, system: system, logger: logger}
}

// Name returns the target name.
func (w *Writer) Name() string { return w.name }

// Reconcile brings the engine-owned tags of externalID in line with wanted.
// An empty externalID means the resource has no external identity and is a
// no-op. Failures are returned as SYNC errors.
func (w *Writer) Reconcile(ctx context.Context, externalID string, eng engine.Info, wanted []string) (Diff, error) {
	if externalID == "" {
		return Diff{}, nil
	}

	current, err := w.system.Tags(ctx, externalID)
	if err != nil {
		return Diff{}, w.fail("read tags", externalID, err)
	}

	d := Plan(current, eng, wanted)
	if d.Empty() {
		w.logger.Debug("external tags already in sync",
			"target", w.name, "external_id", externalID, "engine", eng.Name)
		return d, nil
	}

	if len(d.Remove) > 0 {
		if err := w.system.RemoveTags(ctx, externalID, d.Remove); err != nil {
			return Diff{}, w.fail("remove tags", externalID, err)
		}
		if r, ok := w.system.(Refresher); ok {
			if err := r.Refresh(ctx, externalID); err != nil {
				return Diff{}, w.fail("refresh", externalID, err)
			}
		}
	}
	if len(d.Add) > 0 {
		if err := w.system.AddTags(ctx, externalID, d.Add); err != nil {
			return Diff{}, w.fail("add tags", externalID, err)
		}
	}

	metrics.RecordSync(w.name, len(d.Add), len(d.Remove))
	w.logger.Info("external tags reconciled",
		"target", w.name,
		"external_id", externalID,
		"engine", eng.Name,
		"removed", d.Remove,
		"added", d.Add,
	)
	return d, nil
}

func (w *Writer) fail(op, externalID string, err error) error {
	metrics.RecordSyncError(w.name)
	return errors.Sync(fmt.Sprintf("%s %s for %s", w.name, op, externalID), err)
}

// Manager fans a reconcile out to every configured writer.
type Manager struct {
	writers []*Writer
	logger  *slog.Logger
}

// NewManager creates a manager over writers.
func NewManager(logger *slog.Logger, writers ...*Writer) *Manager {
	if len(writers) == 0 {
		logger.Warn("no sync targets configured, external systems will not be updated")
	}
	return &Manager{writers: writers, logger: logger}
}

// Len returns the number of writers.
func (m *Manager) Len() int { return len(m.writers) }

// Reconcile runs every writer. A failing writer does not stop the others;
// all failures are joined into the returned error.
func (m *Manager) Reconcile(ctx context.Context, externalID string, eng engine.Info, wanted []string) error {
	if externalID == "" {
		return nil
	}
	var errs []error
	for _, w := range m.writers {
		if _, err := w.Reconcile(ctx, externalID, eng, wanted); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
