package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/metrics"
	"github.com/tigertag/tigertag-server/internal/notifier"
	"github.com/tigertag/tigertag-server/internal/scanner"
)

// ErrRunInProgress is returned by Run while another run is active.
var ErrRunInProgress = errors.Conflict("a pipeline run is already in progress")

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run validates the engines, then streams every source through the worker
// pool. Sources are scanned one after another. A discovery error is logged
// and the run moves on; a run-fatal error from OnResource stops all workers
// and is returned with the partial summary.
func (o *Orchestrator) Run(ctx context.Context, sources ...scanner.Source) (*domain.RunSummary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	if err := o.registry.Validate(); err != nil {
		metrics.RecordRun(err)
		return nil, err
	}

	summary := &domain.RunSummary{ID: uuid.NewString(), StartedAt: o.now()}
	logger := o.logger.With("run_id", summary.ID)

	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, src.Name())
	}
	logger.Info("run started", "sources", names, "workers", o.workers)
	_ = o.notifier.Notify(ctx, notifier.RunStarted(summary.ID, names))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	items := make(chan scanner.Item)

	g.Go(func() error {
		defer close(items)
		for _, src := range sources {
			for item := range src.Scan(gctx) {
				select {
				case items <- item:
				case <-gctx.Done():
					item.Release()
					return nil
				}
			}
		}
		return nil
	})

	for range o.workers {
		g.Go(func() error {
			for item := range items {
				if item.Err != nil {
					logger.Error("discovery failed", "error", item.Err)
					metrics.RecordOutcome(domain.OutcomeFailed)
					mu.Lock()
					summary.Add(domain.OutcomeFailed)
					mu.Unlock()
					continue
				}
				if gctx.Err() != nil {
					item.Release()
					continue
				}

				outcome, err := o.OnResource(gctx, item.File)
				item.Release()

				mu.Lock()
				summary.Record(item.File.Path, outcome)
				mu.Unlock()

				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	summary.FinishedAt = o.now()
	metrics.RecordRun(err)

	attrs := []any{
		"discovered", summary.Discovered,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"deferred", summary.Deferred,
		"failed", summary.Failed,
		"duration", summary.Duration(),
	}
	if err != nil {
		logger.Error("run aborted", append(attrs, "error", err)...)
	} else {
		logger.Info("run finished", attrs...)
	}
	_ = o.notifier.Notify(context.WithoutCancel(ctx), notifier.RunFinished(summary, err))

	return summary, err
}
