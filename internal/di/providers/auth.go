package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/config"
	"github.com/mymapsapp/mymaps-server/internal/logger"
)

// AuthKey wraps the session sealing key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the session sealing key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key := cfg.Auth.SessionKey
	if len(key) == 0 {
		var err error
		if key, err = auth.LoadOrGenerateKey(cfg.Storage.DataPath); err != nil {
			return nil, err
		}
		// Update config with the loaded key
		cfg.Auth.SessionKey = key
	}

	log.Info("Session key loaded",
		"session_ttl", cfg.Auth.SessionTTL,
		"init_timeout", cfg.Auth.InitTimeout,
	)

	return AuthKey(key), nil
}

// ProvideSealer provides the PASETO session token sealer.
func ProvideSealer(i do.Injector) (*auth.Sealer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewSealer([]byte(authKey), cfg.Auth.SessionTTL)
}

// SessionStoreHandle wraps the badger session store with shutdown capability.
type SessionStoreHandle struct {
	*auth.Store
}

// Shutdown implements do.Shutdownable.
func (h *SessionStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideSessionStore provides the persistent session store.
func ProvideSessionStore(i do.Injector) (*SessionStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := filepath.Join(cfg.Storage.DataPath, "sessions")
	store, err := auth.OpenStore(path, cfg.Auth.SessionTTL, log.Logger)
	if err != nil {
		return nil, err
	}
	return &SessionStoreHandle{Store: store}, nil
}

// ProvideAuthManager provides the sign-in and session resolution manager.
func ProvideAuthManager(i do.Injector) (*auth.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	store := do.MustInvoke[*SessionStoreHandle](i)
	gw := do.MustInvoke[*GatewayHandle](i)
	sealer := do.MustInvoke[*auth.Sealer](i)

	return auth.NewManager(store.Store, gw.Client, sealer, cfg.Auth.InitTimeout, log.Logger.With("component", "auth")), nil
}
