// Package di provides dependency injection configuration for the MyMaps server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/config"
	"github.com/mymapsapp/mymaps-server/internal/di/providers"
	"github.com/mymapsapp/mymaps-server/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideTracing)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvidePlaceStore)
	do.Provide(injector, providers.ProvideSessionStore)

	// Backend layer
	do.Provide(injector, providers.ProvideGateway)
	do.Provide(injector, providers.ProvidePlaceProvider)
	do.Provide(injector, providers.ProvideRegistry)

	// Auth layer
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideSealer)
	do.Provide(injector, providers.ProvideAuthManager)

	// Workers
	do.Provide(injector, providers.ProvideSessionGCJob)
	do.Provide(injector, providers.ProvidePlacePruneJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. Provider errors surface here instead of as panics.
func Bootstrap(injector *do.RootScope) error {
	for _, invoke := range []func(do.Injector) error{
		invokeAs[*config.Config],
		invokeAs[*logger.Logger],
		invokeAs[*providers.TracingHandle],
		invokeAs[*providers.SSEManagerHandle],
		invokeAs[*providers.PlaceStoreHandle],
		invokeAs[*providers.SessionStoreHandle],
		invokeAs[*providers.RegistryHandle],
		invokeAs[*auth.Manager],
		invokeAs[*providers.SessionGCJob],
		invokeAs[*providers.PlacePruneJob],
		invokeAs[*providers.HTTPServerHandle],
	} {
		if err := invoke(injector); err != nil {
			return err
		}
	}
	return nil
}

func invokeAs[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
