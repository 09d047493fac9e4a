package engine

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/ratelimit"
)

// Deps are the shared collaborators handed to engine constructors.
type Deps struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	Limiter    *ratelimit.KeyedRateLimiter
}

// Constructor builds an engine from its plugin block.
type Constructor func(cfg config.PluginConfig, deps Deps) (Engine, error)

// Factory maps a capability key (the ENGINE_<ID>_NAME value) to a constructor.
type Factory map[string]Constructor

// Keys returns the known capability keys, sorted.
func (f Factory) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build constructs the engine for cfg.
func (f Factory) Build(cfg config.PluginConfig, deps Deps) (Engine, error) {
	ctor, ok := f[cfg.Name]
	if !ok {
		return nil, errors.Configurationf("unknown engine %q for %s (known: %v)", cfg.Name, cfg.Key(), f.Keys())
	}
	return ctor(cfg, deps)
}

// BuildRegistry constructs every engine plugin and registers it in order.
// Disabled engines are still built so their configuration is checked, and
// are registered disabled.
func BuildRegistry(f Factory, plugins []config.PluginConfig, deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	reg := NewRegistry(deps.Logger)
	for _, p := range plugins {
		if p.Kind != config.KindEngine {
			continue
		}
		e, err := f.Build(p, deps)
		if err != nil {
			return nil, err
		}
		reg.Register(e)
		deps.Logger.Info("engine registered",
			"engine", e.Info().Name,
			"kind", p.Name,
			"prefix", e.Info().Prefix,
			"enabled", e.Info().Enabled,
		)
	}
	return reg, nil
}

// InfoFromConfig reads the registry identity shared by every engine: the
// plugin ID is the engine name, PREFIX is optional here so that a missing
// prefix surfaces as the registry's own configuration error.
func InfoFromConfig(cfg config.PluginConfig) Info {
	return Info{
		Name:    cfg.ID,
		Prefix:  cfg.PropOr("PREFIX", ""),
		Enabled: cfg.Enabled,
	}
}

// RetryPolicyFromConfig reads TRIES and RETRY_DELAY.
func RetryPolicyFromConfig(cfg config.PluginConfig) (RetryPolicy, error) {
	tries, err := cfg.IntProp("TRIES", DefaultRetryPolicy.Tries)
	if err != nil {
		return RetryPolicy{}, err
	}
	delay, err := cfg.DurationProp("RETRY_DELAY", DefaultRetryPolicy.Delay)
	if err != nil {
		return RetryPolicy{}, err
	}
	if tries < 1 {
		return RetryPolicy{}, errors.Configurationf("the TRIES property of the %s engine must be at least 1", cfg.ID)
	}
	return RetryPolicy{Tries: tries, Delay: delay}, nil
}
