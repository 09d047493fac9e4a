package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/tigertag/tigertag-server/internal/api"
	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/logger"
	"github.com/tigertag/tigertag-server/internal/pipeline"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
// Server is nil when the admin API is disabled.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	if h.Server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(h.Server.Shutdown(ctx), h.api.Close())
}

// ProvideHTTPServer provides the admin HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sources := do.MustInvoke[*SourcesHandle](i)
	orch := do.MustInvoke[*pipeline.Orchestrator](i)

	if !cfg.Server.Enabled {
		log.Info("Admin API disabled by configuration")
		return &HTTPServerHandle{}, nil
	}

	handler := api.NewServer(api.Deps{
		Catalog:     storeHandle.Store,
		Runner:      orch,
		Sources:     sources.Sources,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log.Logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
