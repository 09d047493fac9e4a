// Package main provides the entry point for the tigertag server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/di"
	"github.com/tigertag/tigertag-server/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	injector := di.NewContainer()

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		injector.Shutdown()
		return 1
	}

	cfg := do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*logger.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := 0
	if cfg.Pipeline.Once {
		summary, err := di.RunOnce(ctx, injector)
		if err != nil {
			log.WithError(err).Error("Run failed")
			code = 1
		}
		if summary != nil {
			log.WithRun(summary.ID).Info("Run finished",
				"discovered", summary.Discovered,
				"processed", summary.Processed,
				"skipped", summary.Skipped,
				"deferred", summary.Deferred,
				"failed", summary.Failed,
			)
		}
	} else {
		if err := di.Serve(injector); err != nil {
			log.Error("Failed to start server", "error", err)
			injector.Shutdown()
			return 1
		}
		<-ctx.Done()
		log.Info("Shutting down server gracefully...")
	}

	// The DI container shuts services down in reverse dependency order.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	log.Info("Goodbye")
	return code
}
