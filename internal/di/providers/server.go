package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/mymapsapp/mymaps-server/internal/api"
	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/config"
	"github.com/mymapsapp/mymaps-server/internal/logger"
	"github.com/mymapsapp/mymaps-server/internal/ratelimit"
)

// sseHeartbeat is how often open event streams receive a keep-alive.
const sseHeartbeat = 25 * time.Second

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	if h.limiter != nil {
		h.limiter.Stop()
	}
	return err
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	_ = do.MustInvoke[*TracingHandle](i)
	registry := do.MustInvoke[*RegistryHandle](i)
	manager := do.MustInvoke[*auth.Manager](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	var limiter *ratelimit.KeyedRateLimiter
	if cfg.Server.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.Server.RequestsPerSecond, cfg.Server.RequestBurst)
	}

	handler := api.NewServer(api.Deps{
		Registry:  registry.Registry,
		Auth:      manager,
		Push:      sseHandle.Manager,
		Heartbeat: sseHeartbeat,
		Limiter:   limiter,
		OAuth: api.OAuthConfig{
			GoogleClientID: cfg.Auth.GoogleClientID,
			RedirectURI:    cfg.Auth.OAuthRedirectURI,
			MobileDeepLink: cfg.Auth.MobileDeepLink,
			SessionTTL:     cfg.Auth.SessionTTL,
			SecureCookies:  cfg.App.Environment == "production",
		},
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

	log.Info("Server running", "addr", srv.Addr, "cors_origins", cfg.Server.CORSOrigins)

	return &HTTPServerHandle{Server: srv, limiter: limiter}, nil
}
