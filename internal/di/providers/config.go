// Package providers contains dependency injection providers for the tigertag server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting TigerTag server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"db_path", cfg.Store.DBPath,
		"engines", len(cfg.PluginsOf(config.KindEngine)),
		"scanners", len(cfg.PluginsOf(config.KindScanner)),
		"stashers", len(cfg.PluginsOf(config.KindStasher)),
		"notifiers", len(cfg.PluginsOf(config.KindNotifier)),
	)
	for _, p := range cfg.Plugins {
		log.Debug("plugin configured", "kind", p.Kind, "id", p.ID, "name", p.Name, "enabled", p.Enabled)
	}

	return log, nil
}
