// Package providers contains dependency injection providers for the MyMaps server.
package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/mymapsapp/mymaps-server/internal/api"
	"github.com/mymapsapp/mymaps-server/internal/config"
	"github.com/mymapsapp/mymaps-server/internal/logger"
	"github.com/mymapsapp/mymaps-server/internal/telemetry"
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

	log.Info("Starting MyMaps Server",
		"version", api.Version,
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Storage.DataPath,
		"backend_url", cfg.Backend.URL,
	)

	return log, nil
}

// ProvideSlogLogger provides access to the underlying slog.Logger for packages that need it.
func ProvideSlogLogger(i do.Injector) (*slog.Logger, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return log.Logger, nil
}

// TracingHandle flushes spans on shutdown.
type TracingHandle struct {
	shutdown func(context.Context) error
}

// Shutdown implements do.Shutdownable.
func (h *TracingHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.shutdown(ctx)
}

// ProvideTracing installs the tracer provider. Without an OTLP endpoint spans are dropped.
func ProvideTracing(i do.Injector) (*TracingHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	tcfg := telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: api.Version,
		Environment:    cfg.App.Environment,
	}
	shutdown, err := telemetry.Setup(context.Background(), tcfg)
	if err != nil {
		return nil, err
	}

	if tcfg.Enabled() {
		log.Info("Tracing enabled", "endpoint", tcfg.Endpoint, "service", tcfg.ServiceName)
	} else {
		log.Debug("Tracing disabled, no OTLP endpoint configured")
	}

	return &TracingHandle{shutdown: shutdown}, nil
}
