package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/mymapsapp/mymaps-server/internal/config"
	"github.com/mymapsapp/mymaps-server/internal/logger"
)

const (
	sessionGCInterval  = time.Hour
	placePruneInterval = 24 * time.Hour
	// placeRetention is how many cache lifetimes a place row outlives its freshness.
	placeRetention = 3
)

// SessionGCJob periodically compacts the session store.
type SessionGCJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *SessionGCJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideSessionGCJob provides the periodic session store garbage collection job.
func ProvideSessionGCJob(i do.Injector) (*SessionGCJob, error) {
	store := do.MustInvoke[*SessionStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(sessionGCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n, err := store.CollectGarbage(); err != nil {
					log.Warn("Session store GC failed", "error", err)
				} else if n > 0 {
					log.Info("Session store GC completed", "rewritten", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Session GC job started", "interval", sessionGCInterval)

	return &SessionGCJob{cancel: cancel}, nil
}

// PlacePruneJob periodically removes long-expired place details.
type PlacePruneJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *PlacePruneJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvidePlacePruneJob provides the periodic place cache prune job.
func ProvidePlacePruneJob(i do.Injector) (*PlacePruneJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	placeStore := do.MustInvoke[*PlaceStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	retention := cfg.Places.CacheLifetime * placeRetention
	ctx, cancel := context.WithCancel(context.Background())

	prune := func() {
		n, err := placeStore.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn("Place cache prune failed", "error", err)
		} else if n > 0 {
			log.Info("Place cache prune completed", "deleted", n)
		}
	}

	go func() {
		ticker := time.NewTicker(placePruneInterval)
		defer ticker.Stop()

		// Initial prune on startup
		prune()

		for {
			select {
			case <-ticker.C:
				prune()
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Place prune job started", "retention", retention)

	return &PlacePruneJob{cancel: cancel}, nil
}
