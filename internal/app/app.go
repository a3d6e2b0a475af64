// Package app composes the object graph of one application session: a query cache, a
// gateway acting with the session's access token, the read services over that cache and
// the mutation coordinator writing through it. A Registry owns the live sessions.
package app

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/gateway"
	"github.com/mymapsapp/mymaps-server/internal/mutation"
	"github.com/mymapsapp/mymaps-server/internal/places"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/service"
	"github.com/mymapsapp/mymaps-server/internal/sse"
	"github.com/mymapsapp/mymaps-server/internal/validation"
)

// App is one application session. The anonymous App has empty SessionID and ViewerID.
type App struct {
	SessionID string
	ViewerID  string

	Cache     *querycache.Cache
	Posts     *service.PostService
	Users     *service.UserService
	Search    *service.SearchService
	Tags      *service.TagService
	Places    *service.PlaceService
	Mutations *mutation.Coordinator

	token     atomic.Pointer[string]
	lastUsed  atomic.Int64
	stopWatch func()
}

// Deps are the process-wide collaborators every App shares.
type Deps struct {
	Gateway       *gateway.Client
	PlaceStore    places.LocalStore
	PlaceProvider places.Provider
	PlaceLifetime time.Duration
	// Push, if set, receives the cache changes and mutation failures of signed-in sessions.
	Push        *sse.Manager
	Validator   *validation.Validator
	Cache       querycache.Options
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

func newApp(deps Deps, sessionID, viewerID, accessToken string, now time.Time) *App {
	logger := deps.Logger
	if sessionID != "" {
		logger = logger.With("session_id", sessionID)
	}

	a := &App{SessionID: sessionID, ViewerID: viewerID}
	a.setToken(accessToken)
	a.touch(now)

	client := deps.Gateway.WithTokenSource(a.accessToken)

	cacheOpts := deps.Cache
	cacheOpts.Logger = logger.With("component", "querycache")
	a.Cache = querycache.New(cacheOpts)

	placeDetails := places.NewService(deps.PlaceStore, client, deps.PlaceProvider, deps.PlaceLifetime, logger.With("component", "places"))

	a.Posts = service.NewPostService(a.Cache, client, viewerID, logger)
	a.Users = service.NewUserService(a.Cache, client, viewerID, logger)
	a.Search = service.NewSearchService(a.Cache, client, logger)
	a.Tags = service.NewTagService(a.Cache, client, logger)
	a.Places = service.NewPlaceService(a.Cache, placeDetails, logger)

	var onFailure func(mutation.Failure)
	if deps.Push != nil && sessionID != "" {
		onFailure = deps.Push.MutationFailures(sessionID)
		a.stopWatch = deps.Push.WatchCache(sessionID, a.Cache)
	}
	a.Mutations = mutation.New(a.Cache, client, mutation.Options{
		ViewerID:  viewerID,
		Places:    placeDetails,
		Validator: deps.Validator,
		Logger:    logger.With("component", "mutation"),
		OnFailure: onFailure,
	})
	return a
}

// Close stops pushing changes, waits for background writes and drops the cache.
func (a *App) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.Mutations.Close()
	a.Cache.Close()
}

func (a *App) accessToken() string {
	if t := a.token.Load(); t != nil {
		return *t
	}
	return ""
}

func (a *App) setToken(token string) {
	a.token.Store(&token)
}

func (a *App) touch(now time.Time) {
	a.lastUsed.Store(now.UnixNano())
}

func (a *App) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, a.lastUsed.Load()))
}
