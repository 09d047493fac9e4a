// Package di provides dependency injection configuration for the tigertag server.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/di/providers"
	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/logger"
	"github.com/tigertag/tigertag-server/internal/notifier"
	"github.com/tigertag/tigertag-server/internal/pipeline"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()
	do.Provide(injector, providers.ProvideConfig)
	provideServices(injector)
	return injector
}

// NewContainerWithConfig creates a container around an already loaded config.
func NewContainerWithConfig(cfg *config.Config) *do.RootScope {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	provideServices(injector)
	return injector
}

func provideServices(injector do.Injector) {
	// Core infrastructure
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Pipeline
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideSources)
	do.Provide(injector, providers.ProvideListeners)
	do.Provide(injector, providers.ProvideNotifier)
	do.Provide(injector, providers.ProvideOrchestrator)

	// Workers
	do.Provide(injector, providers.ProvideFileWatcher)
	do.Provide(injector, providers.ProvideScheduler)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
}

// Bootstrap initializes the pipeline and returns an error for any
// configuration problem, before anything is started.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.RegistryHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SourcesHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.ListenersHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*notifier.Manager](injector); err != nil {
		return err
	}
	_, err := do.Invoke[*pipeline.Orchestrator](injector)
	return err
}

// Serve starts the long-running workers: the file watcher, the run
// scheduler and the admin API.
func Serve(injector *do.RootScope) error {
	if _, err := do.Invoke[*providers.FileWatcherHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SchedulerHandle](injector); err != nil {
		return err
	}
	_, err := do.Invoke[*providers.HTTPServerHandle](injector)
	return err
}

// RunOnce performs a single pipeline pass over every source.
func RunOnce(ctx context.Context, injector *do.RootScope) (*domain.RunSummary, error) {
	orch, err := do.Invoke[*pipeline.Orchestrator](injector)
	if err != nil {
		return nil, err
	}
	sources := do.MustInvoke[*providers.SourcesHandle](injector)
	return orch.Run(ctx, sources.Sources...)
}
