// Package notifier tells operators when a pipeline run starts and ends.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/errors"
)

// Notification is one message about a run.
type Notification struct {
	Subject string
	Message string
	RunID   string
	Summary *domain.RunSummary // Set on run end
}

// Notifier delivers notifications.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// RunStarted builds the notification sent before the first resource.
func RunStarted(runID string, sources []string) Notification {
	return Notification{
		Subject: "TigerTag run started",
		Message: fmt.Sprintf("Run %s started scanning %s.", runID, strings.Join(sources, ", ")),
		RunID:   runID,
	}
}

// RunFinished builds the notification sent after the run, successful or not.
func RunFinished(summary *domain.RunSummary, runErr error) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s.\n", summary.ID, summary.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "discovered: %d\n", summary.Discovered)
	fmt.Fprintf(&b, "processed: %d\n", summary.Processed)
	fmt.Fprintf(&b, "skipped: %d\n", summary.Skipped)
	fmt.Fprintf(&b, "deferred: %d\n", summary.Deferred)
	fmt.Fprintf(&b, "failed: %d\n", summary.Failed)

	subject := "TigerTag run finished"
	if runErr != nil {
		subject = "TigerTag run failed"
		fmt.Fprintf(&b, "error: %v\n", runErr)
	}
	return Notification{
		Subject: subject,
		Message: b.String(),
		RunID:   summary.ID,
		Summary: summary,
	}
}

// Manager fans a notification out to every configured notifier.
type Manager struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewManager creates a manager over the given notifiers.
func NewManager(logger *slog.Logger, notifiers ...Notifier) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{notifiers: notifiers, logger: logger}
}

// Len returns the number of notifiers.
func (m *Manager) Len() int { return len(m.notifiers) }

// Notify delivers n to every notifier. A failing notifier does not stop the
// others; all failures are returned joined.
func (m *Manager) Notify(ctx context.Context, n Notification) error {
	if len(m.notifiers) == 0 {
		m.logger.Warn("no notifiers configured, please check your configuration")
		return nil
	}
	var errs []error
	for _, nt := range m.notifiers {
		if err := nt.Notify(ctx, n); err != nil {
			m.logger.Error("notification failed", "notifier", nt.Name(), "subject", n.Subject, "error", err)
			errs = append(errs, fmt.Errorf("notifier %s: %w", nt.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Deps are the shared collaborators handed to notifier constructors.
type Deps struct {
	Logger *slog.Logger
}

// Constructor builds a notifier from its plugin block.
type Constructor func(cfg config.PluginConfig, deps Deps) (Notifier, error)

// Factory maps a capability key (the NOTIFIER_<ID>_NAME value) to a constructor.
type Factory map[string]Constructor

// DefaultFactory knows every built-in notifier.
func DefaultFactory() Factory {
	return Factory{
		"log":   NewLogNotifier,
		"email": NewEmailNotifier,
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

// BuildManager constructs every enabled notifier plugin.
func BuildManager(f Factory, plugins []config.PluginConfig, deps Deps) (*Manager, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	var notifiers []Notifier
	for _, p := range plugins {
		if p.Kind != config.KindNotifier || !p.Enabled {
			continue
		}
		ctor, ok := f[p.Name]
		if !ok {
			return nil, errors.Configurationf("unknown notifier %q for %s (known: %v)", p.Name, p.Key(), f.Keys())
		}
		n, err := ctor(p, deps)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return NewManager(deps.Logger, notifiers...), nil
}
