package providers

import (
	"github.com/samber/do/v2"

	"github.com/mymapsapp/mymaps-server/internal/app"
	"github.com/mymapsapp/mymaps-server/internal/config"
	"github.com/mymapsapp/mymaps-server/internal/gateway"
	"github.com/mymapsapp/mymaps-server/internal/logger"
	"github.com/mymapsapp/mymaps-server/internal/places"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/validation"
)

// GatewayHandle wraps the backend client with shutdown capability.
type GatewayHandle struct {
	*gateway.Client
}

// Shutdown implements do.Shutdownable.
func (h *GatewayHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideGateway provides the anonymous backend client every session derives from.
func ProvideGateway(i do.Injector) (*GatewayHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := gateway.New(gateway.Config{
		BaseURL:           cfg.Backend.URL,
		AnonKey:           cfg.Backend.AnonKey,
		PhotoBucket:       cfg.Backend.PhotoBucket,
		Timeout:           cfg.Backend.Timeout,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
	}, log.Logger.With("component", "gateway"))

	log.Info("Backend client ready", "url", cfg.Backend.URL, "photo_bucket", cfg.Backend.PhotoBucket)

	return &GatewayHandle{Client: client}, nil
}

// PlaceProviderHandle wraps the places provider with shutdown capability.
type PlaceProviderHandle struct {
	*places.GoogleProvider
}

// Shutdown implements do.Shutdownable.
func (h *PlaceProviderHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvidePlaceProvider provides the third-party place details client.
func ProvidePlaceProvider(i do.Injector) (*PlaceProviderHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Places.APIKey == "" {
		log.Warn("No places API key configured - only cached place details will be served")
	}

	provider := places.NewGoogleProvider(cfg.Places.BaseURL, cfg.Places.APIKey, log.Logger.With("component", "places"))
	return &PlaceProviderHandle{GoogleProvider: provider}, nil
}

// RegistryHandle wraps the per-session App registry with shutdown capability.
type RegistryHandle struct {
	*app.Registry
}

// Shutdown implements do.Shutdownable.
func (h *RegistryHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideRegistry provides the registry of per-session Apps.
func ProvideRegistry(i do.Injector) (*RegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	gw := do.MustInvoke[*GatewayHandle](i)
	placeStore := do.MustInvoke[*PlaceStoreHandle](i)
	provider := do.MustInvoke[*PlaceProviderHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	registry := app.NewRegistry(app.Deps{
		Gateway:       gw.Client,
		PlaceStore:    placeStore.Store,
		PlaceProvider: provider.GoogleProvider,
		PlaceLifetime: cfg.Places.CacheLifetime,
		Push:          sseHandle.Manager,
		Validator:     validation.New(),
		Cache: querycache.Options{
			GCTime:     cfg.Cache.GCTime,
			RetryDelay: cfg.Cache.RetryDelay,
		},
		IdleTimeout: cfg.Cache.SessionIdleTimeout,
		Logger:      log.Logger,
	})

	log.Info("Session registry ready", "idle_timeout", cfg.Cache.SessionIdleTimeout)

	return &RegistryHandle{Registry: registry}, nil
}
