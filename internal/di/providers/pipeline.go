package providers

import (
	"github.com/samber/do/v2"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/engine"
	"github.com/tigertag/tigertag-server/internal/engine/compreface"
	"github.com/tigertag/tigertag-server/internal/engine/imagga"
	"github.com/tigertag/tigertag-server/internal/logger"
	"github.com/tigertag/tigertag-server/internal/notifier"
	"github.com/tigertag/tigertag-server/internal/pipeline"
	"github.com/tigertag/tigertag-server/internal/scanner"
)

// EngineFactory knows every built-in classification engine.
func EngineFactory() engine.Factory {
	return engine.Factory{
		"imagga":     imagga.New,
		"compreface": compreface.New,
	}
}

// RegistryHandle wraps the engine registry with shutdown capability.
type RegistryHandle struct {
	*engine.Registry
}

// Shutdown implements do.Shutdownable.
func (h *RegistryHandle) Shutdown() error {
	return h.Close()
}

// ProvideRegistry builds and validates every configured engine.
func ProvideRegistry(i do.Injector) (*RegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	reg, err := engine.BuildRegistry(EngineFactory(), cfg.PluginsOf(config.KindEngine), engine.Deps{Logger: log.Logger})
	if err != nil {
		return nil, err
	}

	// Catch prefix mistakes at startup rather than on the first resource.
	if err := reg.Validate(); err != nil {
		_ = reg.Close()
		return nil, err
	}
	for _, e := range reg.Engines() {
		if info := e.Info(); !info.Enabled {
			log.WithEngine(info.Name, info.Prefix).Info("Engine disabled, skipping it during dispatch")
		}
	}
	if len(reg.Enabled()) == 0 {
		log.Warn("No enabled engines configured, resources will be fingerprinted without tags")
	}

	return &RegistryHandle{Registry: reg}, nil
}

// SourcesHandle holds the discovery sources.
type SourcesHandle struct {
	Sources []scanner.Source
}

// Directories returns the sources backed by a local directory.
func (h *SourcesHandle) Directories() []*scanner.DirectorySource {
	var dirs []*scanner.DirectorySource
	for _, s := range h.Sources {
		if d, ok := s.(*scanner.DirectorySource); ok {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Shutdown implements do.Shutdownable.
func (h *SourcesHandle) Shutdown() error {
	return closeAll(h.Sources)
}

// ProvideSources builds every enabled scanner.
func ProvideSources(i do.Injector) (*SourcesHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	sources, err := scanner.BuildSources(scanner.DefaultFactory(), cfg.PluginsOf(config.KindScanner), scanner.Deps{Logger: log.Logger})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		log.Warn("No enabled scanners configured, runs will discover nothing")
	}

	return &SourcesHandle{Sources: sources}, nil
}

// ListenersHandle holds the per-engine result listeners.
type ListenersHandle struct {
	Listeners []pipeline.Listener
}

// Shutdown implements do.Shutdownable.
func (h *ListenersHandle) Shutdown() error {
	return closeAll(h.Listeners)
}

// ProvideListeners builds the catalog, sync and console listeners.
func ProvideListeners(i do.Injector) (*ListenersHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	listeners, err := pipeline.BuildListeners(cfg.PluginsOf(config.KindStasher), storeHandle.Store, pipeline.StasherDeps{Logger: log.Logger})
	if err != nil {
		return nil, err
	}
	return &ListenersHandle{Listeners: listeners}, nil
}

// ProvideNotifier builds every enabled notifier.
func ProvideNotifier(i do.Injector) (*notifier.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return notifier.BuildManager(notifier.DefaultFactory(), cfg.PluginsOf(config.KindNotifier), notifier.Deps{Logger: log.Logger})
}

// ProvideOrchestrator wires the pipeline.
func ProvideOrchestrator(i do.Injector) (*pipeline.Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	registry := do.MustInvoke[*RegistryHandle](i)
	listeners := do.MustInvoke[*ListenersHandle](i)
	notifiers := do.MustInvoke[*notifier.Manager](i)

	orch := pipeline.New(storeHandle.Store, registry.Registry, pipeline.Options{
		Threshold: cfg.Pipeline.ConfidenceThreshold,
		Workers:   cfg.Pipeline.Workers,
		Notifier:  notifiers,
		Logger:    log.Logger,
	}, listeners.Listeners...)

	log.Info("Pipeline ready",
		"engines", len(registry.Enabled()),
		"threshold", cfg.Pipeline.ConfidenceThreshold,
		"workers", cfg.Pipeline.Workers,
	)
	return orch, nil
}
