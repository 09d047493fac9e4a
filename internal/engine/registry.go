package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/cases"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/validation"
)

// Result is one engine's outcome for one resource.
type Result struct {
	Engine      Info
	Computation *domain.TagComputation // nil means deferred
}

// Deferred reports whether the engine asked for a later rescan.
func (r Result) Deferred() bool {
	return r.Computation == nil
}

// EngineError is an engine's own failure during Dispatch.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string { return fmt.Sprintf("engine %s: %v", e.Engine, e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// ResultFunc receives each engine's result as soon as the engine returns.
// A non-nil error stops the dispatch.
type ResultFunc func(ctx context.Context, res Result) error

// Registry holds the configured engines keyed by name.
type Registry struct {
	mu        sync.RWMutex
	engines   map[string]Engine
	order     []string
	validated bool
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		engines: make(map[string]Engine),
		logger:  logger,
	}
}

// Register adds an engine. A later registration under the same name replaces
// the earlier engine but keeps its position in the dispatch order.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Info().Name
	if _, exists := r.engines[name]; !exists {
		r.order = append(r.order, name)
	} else {
		r.logger.Warn("engine re-registered, replacing previous", "engine", name)
	}
	r.engines[name] = e
	r.validated = false
}

// Engines returns every registered engine in registration order.
func (r *Registry) Engines() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Engine, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.engines[name])
	}
	return out
}

// Enabled returns the enabled engines in registration order.
func (r *Registry) Enabled() []Engine {
	var out []Engine
	for _, e := range r.Engines() {
		if e.Info().Enabled {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks the namespace invariants over the enabled engines: every
// one has a prefix and no two share one. It is meant to run once at startup;
// after it succeeds Dispatch skips the per-call duplicate check until the
// next Register.
func (r *Registry) Validate() error {
	enabled := r.Enabled()
	if err := checkPrefixesPresent(enabled); err != nil {
		return err
	}

	seen := make(map[string]string, len(enabled))
	for _, e := range enabled {
		info := e.Info()
		if err := checkDuplicate(seen, info); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.validated = true
	r.mu.Unlock()
	return nil
}

// Dispatch runs every enabled engine against req in registration order and
// hands each result to onResult before the next engine starts.
//
// A missing prefix fails before any engine runs. A duplicate prefix fails
// when the offending engine is reached: engines before it have already run
// and their results have already been delivered. An engine error stops the
// dispatch the same way.
func (r *Registry) Dispatch(ctx context.Context, req Request, onResult ResultFunc) ([]Result, error) {
	enabled := r.Enabled()
	if err := checkPrefixesPresent(enabled); err != nil {
		return nil, err
	}

	r.mu.RLock()
	validated := r.validated
	r.mu.RUnlock()

	results := make([]Result, 0, len(enabled))
	seen := make(map[string]string, len(enabled))

	for _, e := range enabled {
		info := e.Info()
		if !validated {
			if err := checkDuplicate(seen, info); err != nil {
				return results, err
			}
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		computation, err := e.Tag(ctx, req)
		if err != nil {
			return results, &EngineError{Engine: info.Name, Err: err}
		}

		res := Result{Engine: info, Computation: computation}
		results = append(results, res)

		if onResult != nil {
			if err := onResult(ctx, res); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}

// Close releases every engine that holds resources.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.Engines() {
		if c, ok := e.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close engine %s: %w", e.Info().Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func checkPrefixesPresent(enabled []Engine) error {
	for _, e := range enabled {
		info := e.Info()
		if info.Prefix == "" {
			return errors.Configurationf("the %s engine is missing the prefix attribute", info.Name)
		}
		if err := validation.Default().Var("prefix", info.Prefix, "tagprefix"); err != nil {
			return errors.Configurationf("the %s engine has an unusable prefix %q: %v", info.Name, info.Prefix, err)
		}
	}
	return nil
}

// checkDuplicate records info's prefix in seen or reports the clash. Prefixes
// are compared case-folded because tag ownership is matched that way.
func checkDuplicate(seen map[string]string, info Info) error {
	key := cases.Fold().String(info.Prefix)
	if first, dup := seen[key]; dup {
		return errors.Configurationf(
			"duplicate prefix %s found in %s engine (already used by %s); removing the engine or changing the prefix will resolve the issue",
			info.Prefix, info.Name, first)
	}
	seen[key] = info.Name
	return nil
}
