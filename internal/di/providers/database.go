package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/mymapsapp/mymaps-server/internal/config"
	"github.com/mymapsapp/mymaps-server/internal/logger"
	"github.com/mymapsapp/mymaps-server/internal/places"
	"github.com/mymapsapp/mymaps-server/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// PlaceStoreHandle wraps the local place details database with shutdown capability.
type PlaceStoreHandle struct {
	*places.Store
}

// Shutdown implements do.Shutdownable.
func (h *PlaceStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvidePlaceStore provides the SQLite place details cache.
func ProvidePlaceStore(i do.Injector) (*PlaceStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Storage.DataPath, "places.db")
	store, err := places.OpenStore(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Place cache initialized", "path", dbPath)

	return &PlaceStoreHandle{Store: store}, nil
}
