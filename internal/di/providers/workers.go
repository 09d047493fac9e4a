package providers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samber/do/v2"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/logger"
	"github.com/tigertag/tigertag-server/internal/pipeline"
	"github.com/tigertag/tigertag-server/internal/watcher"
)

// FileWatcherHandle wraps the file watcher with shutdown capability.
// Watcher is nil when watching is disabled or no directory source exists.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	err := h.Watcher.Stop()
	h.wg.Wait()
	return err
}

// ProvideFileWatcher watches every directory source and feeds settled
// changes to the orchestrator.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sources := do.MustInvoke[*SourcesHandle](i)
	orch := do.MustInvoke[*pipeline.Orchestrator](i)

	dirs := sources.Directories()
	if !cfg.Pipeline.WatchEnabled || len(dirs) == 0 {
		log.Info("File watcher disabled", "enabled", cfg.Pipeline.WatchEnabled, "directories", len(dirs))
		return &FileWatcherHandle{}, nil
	}

	w, err := watcher.New(log.Logger, watcher.Options{})
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if err := w.Watch(d.Root()); err != nil {
			_ = w.Stop()
			return nil, err
		}
		log.Info("Watching directory source", "source", d.Name(), "path", d.Root())
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &FileWatcherHandle{Watcher: w, cancel: cancel}

	h.wg.Add(3)
	go func() {
		defer h.wg.Done()
		if err := w.Start(ctx); err != nil {
			log.Error("File watcher error", "error", err)
		}
	}()
	go func() {
		defer h.wg.Done()
		if err := orch.Watch(ctx, w.Events(), dirs...); err != nil {
			log.Error("Watch feed stopped", "error", err)
		}
	}()
	go func() {
		defer h.wg.Done()
		for {
			select {
			case err := <-w.Errors():
				log.Warn("file watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("File watcher started", "directories", len(dirs))
	return h, nil
}

// SchedulerHandle runs the pipeline at startup and then every SCAN_INTERVAL.
type SchedulerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *SchedulerHandle) Shutdown() error {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(shutdownTimeout):
		return errors.New("scheduler did not stop in time")
	}
	return nil
}

// ProvideScheduler starts the periodic run loop.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sources := do.MustInvoke[*SourcesHandle](i)
	orch := do.MustInvoke[*pipeline.Orchestrator](i)

	ctx, cancel := context.WithCancel(context.Background())
	h := &SchedulerHandle{cancel: cancel, done: make(chan struct{})}

	run := func() {
		summary, err := orch.Run(ctx, sources.Sources...)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			log.Info("Scheduled run skipped, another run is active")
		case err != nil && ctx.Err() == nil:
			log.Error("Scheduled run failed", "error", err)
		case summary != nil:
			log.Info("Scheduled run finished",
				"run_id", summary.ID,
				"processed", summary.Processed,
				"skipped", summary.Skipped,
				"deferred", summary.Deferred,
				"failed", summary.Failed,
			)
		}
	}

	go func() {
		defer close(h.done)
		run()

		interval := cfg.Pipeline.ScanInterval
		if interval <= 0 {
			log.Info("Periodic runs disabled")
			<-ctx.Done()
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Scheduler started", "interval", cfg.Pipeline.ScanInterval)
	return h, nil
}
