package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/logger"
	"github.com/tigertag/tigertag-server/internal/store/sqlite"
)

// StoreHandle wraps the catalog with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the SQLite catalog.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Store.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data path: %w", err)
	}

	db, err := sqlite.Open(cfg.Store.DBPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", cfg.Store.DBPath)

	return &StoreHandle{Store: db}, nil
}
