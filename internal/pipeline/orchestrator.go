// Package pipeline drives resources from discovery through the engines into
// the catalog and the external sync targets.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/engine"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/metrics"
	"github.com/tigertag/tigertag-server/internal/notifier"
	"github.com/tigertag/tigertag-server/internal/store"
)

// DefaultConfidenceThreshold drops tags an engine is less than 30% sure of.
const DefaultConfidenceThreshold = 30

// Options configure an Orchestrator.
type Options struct {
	// Threshold is the minimum confidence a tag needs to be kept.
	Threshold int
	// Workers is the number of resources processed at once during Run.
	// Values below 1 mean one.
	Workers  int
	Notifier *notifier.Manager
	Logger   *slog.Logger
}

// Orchestrator runs the per-resource state machine: skip when unchanged,
// otherwise claim, dispatch, filter, hand to listeners and commit.
type Orchestrator struct {
	fingerprints store.FingerprintStore
	registry     *engine.Registry
	listeners    []Listener
	notifier     *notifier.Manager
	threshold    int
	workers      int
	logger       *slog.Logger
	now          func() time.Time

	locks   *locationLocks
	running atomic.Bool
}

// New creates an Orchestrator. Listeners are called in the order given.
func New(fingerprints store.FingerprintStore, registry *engine.Registry, opts Options, listeners ...Listener) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := opts.Notifier
	if n == nil {
		n = notifier.NewManager(logger)
	}
	return &Orchestrator{
		fingerprints: fingerprints,
		registry:     registry,
		listeners:    listeners,
		notifier:     n,
		threshold:    opts.Threshold,
		workers:      max(opts.Workers, 1),
		logger:       logger,
		now:          time.Now,
		locks:        newLocationLocks(),
	}
}

// OnResource takes one discovered resource through the pipeline.
//
// The resource is claimed with the rescan fingerprint before any engine
// runs and only gets its real fingerprint once every engine produced a
// computation and every listener accepted it. Anything short of that leaves
// it due for the next run.
//
// The returned error is non-nil only for failures that must stop the run:
// persistence, configuration and cancellation. An engine failing on this
// resource yields OutcomeFailed with a nil error.
func (o *Orchestrator) OnResource(ctx context.Context, file domain.FileInfo) (domain.Outcome, error) {
	lock := o.locks.get(file.Path)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	outcome, err := o.process(ctx, file)
	metrics.ObserveResource(time.Since(start))
	metrics.RecordOutcome(outcome)
	return outcome, err
}

func (o *Orchestrator) process(ctx context.Context, file domain.FileInfo) (domain.Outcome, error) {
	logger := o.logger.With("location", file.Path)

	changed, err := o.fingerprints.ShouldProcess(ctx, file.Path, file.Fingerprint)
	if err != nil {
		return domain.OutcomeFailed, errors.Persistence("check fingerprint", err)
	}
	if !changed {
		logger.Debug("unchanged, skipping")
		return domain.OutcomeSkipped, nil
	}

	if _, err := o.fingerprints.Record(ctx, file.Path, file.Name, domain.RescanFingerprint, o.now()); err != nil {
		return domain.OutcomeFailed, errors.Persistence("claim resource", err)
	}

	deferred, undelivered := false, false
	_, err = o.registry.Dispatch(ctx, engine.RequestFor(file), func(ctx context.Context, res engine.Result) error {
		if res.Deferred() {
			metrics.RecordEngineCall(res.Engine.Name, metrics.EngineDeferred)
			logger.Info("engine deferred, resource will be rescanned", "engine", res.Engine.Name)
			deferred = true
			if err := o.fingerprints.ForceRescan(ctx, file.Path); err != nil {
				return errors.Persistence("force rescan", err)
			}
			return nil
		}

		tags := res.Computation.Filter(o.threshold)
		if len(res.Computation.Tags) == 0 {
			metrics.RecordEngineCall(res.Engine.Name, metrics.EngineEmpty)
		} else {
			metrics.RecordEngineCall(res.Engine.Name, metrics.EngineTagged)
		}
		logger.Debug("engine tagged",
			"engine", res.Engine.Name,
			"found", len(res.Computation.Tags),
			"kept", len(tags),
		)
		failed, err := o.notifyListeners(ctx, logger, file, res.Engine, tags)
		if failed {
			undelivered = true
		}
		return err
	})
	if err != nil {
		return o.dispatchFailed(ctx, logger, file, err)
	}

	if deferred {
		return domain.OutcomeDeferred, nil
	}
	if undelivered {
		// The claim stays, so the next run re-tags and re-syncs.
		logger.Warn("tags not delivered to every listener, resource will be rescanned")
		return domain.OutcomeFailed, nil
	}

	if _, err := o.fingerprints.Record(ctx, file.Path, file.Name, file.Fingerprint, o.now()); err != nil {
		return domain.OutcomeFailed, errors.Persistence("commit fingerprint", err)
	}
	logger.Info("resource processed")
	return domain.OutcomeProcessed, nil
}

// notifyListeners hands the filtered tags to every listener. A persistence
// error stops the chain and is returned. Any other listener error is logged,
// the remaining listeners still run, and failed reports it so the resource
// is not committed.
func (o *Orchestrator) notifyListeners(ctx context.Context, logger *slog.Logger, file domain.FileInfo, eng engine.Info, tags map[string]int) (failed bool, err error) {
	for _, l := range o.listeners {
		lerr := l.OnTags(ctx, file, eng, tags)
		if lerr == nil {
			continue
		}
		if errors.Is(lerr, errors.ErrPersistence) {
			return true, lerr
		}
		logger.Warn("listener failed", "engine", eng.Name, "error", lerr)
		failed = true
	}
	return failed, nil
}

// dispatchFailed sorts a dispatch error into run-fatal errors and a failure
// of this resource alone.
func (o *Orchestrator) dispatchFailed(ctx context.Context, logger *slog.Logger, file domain.FileInfo, err error) (domain.Outcome, error) {
	if errors.Is(err, errors.ErrPersistence) || errors.Is(err, errors.ErrConfiguration) {
		return domain.OutcomeFailed, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.OutcomeFailed, ctxErr
	}

	var engErr *engine.EngineError
	if errors.As(err, &engErr) {
		metrics.RecordEngineCall(engErr.Engine, metrics.EngineError)
	}
	logger.Error("tagging failed, resource will be rescanned", "error", err)

	if rerr := o.fingerprints.ForceRescan(ctx, file.Path); rerr != nil {
		return domain.OutcomeFailed, errors.Persistence("force rescan", rerr)
	}
	return domain.OutcomeFailed, nil
}
