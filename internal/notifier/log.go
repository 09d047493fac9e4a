package notifier

import (
	"context"
	"log/slog"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/errors"
)

// LogNotifier writes notifications as structured log lines.
type LogNotifier struct {
	name   string
	level  slog.Level
	logger *slog.Logger
}

// NewLogNotifier builds a log notifier. LEVEL defaults to info.
func NewLogNotifier(cfg config.PluginConfig, deps Deps) (Notifier, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.PropOr("LEVEL", "info"))); err != nil {
		return nil, errors.Configurationf("the LEVEL property of the %s notifier is invalid: %v", cfg.ID, err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{name: cfg.ID, level: level, logger: logger}, nil
}

// Name implements Notifier.
func (l *LogNotifier) Name() string { return l.name }

// Notify implements Notifier.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	attrs := []any{"notifier", l.name, "run_id", n.RunID}
	if s := n.Summary; s != nil {
		attrs = append(attrs,
			"discovered", s.Discovered,
			"processed", s.Processed,
			"skipped", s.Skipped,
			"deferred", s.Deferred,
			"failed", s.Failed,
			"duration", s.Duration(),
		)
	}
	l.logger.Log(ctx, l.level, n.Subject, attrs...)
	return nil
}
