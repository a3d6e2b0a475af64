package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/auth"
)

// DefaultIdleTimeout is how long an unused session keeps its cache.
const DefaultIdleTimeout = 30 * time.Minute

// Registry holds one App per signed-in session plus a shared anonymous App.
type Registry struct {
	deps Deps

	mu   sync.Mutex
	apps map[string]*App
	anon *App

	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a registry and starts evicting idle sessions.
func NewRegistry(deps Deps) *Registry {
	if deps.IdleTimeout <= 0 {
		deps.IdleTimeout = DefaultIdleTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{
		deps: deps,
		apps: make(map[string]*App),
		now:  time.Now,
		done: make(chan struct{}),
	}
	r.anon = newApp(deps, "", "", "", r.now())

	r.wg.Add(1)
	go r.janitor()
	return r
}

// For returns the App of sess, creating it on first use. A nil session gets the shared
// anonymous App. A refreshed access token is picked up by the existing App.
func (r *Registry) For(sess *auth.Session) *App {
	now := r.now()
	if sess == nil {
		r.anon.touch(now)
		return r.anon
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.apps[sess.ID]
	if !ok {
		a = newApp(r.deps, sess.ID, sess.UserID, sess.AccessToken, now)
		r.apps[sess.ID] = a
		r.deps.Logger.Debug("session app created", "session_id", sess.ID, "user_id", sess.UserID)
		return a
	}
	if a.accessToken() != sess.AccessToken {
		a.setToken(sess.AccessToken)
	}
	a.touch(now)
	return a
}

// Touch keeps the App of sessionID alive, e.g. while an event stream is open.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.apps[sessionID]; ok {
		a.touch(r.now())
	}
}

// Drop closes and forgets the App of sessionID.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	a, ok := r.apps[sessionID]
	delete(r.apps, sessionID)
	r.mu.Unlock()
	if ok {
		a.Close()
	}
}

// Len returns the number of signed-in session Apps.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.apps)
}

// Close stops the janitor and closes every App.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()

	r.mu.Lock()
	apps := r.apps
	r.apps = make(map[string]*App)
	r.mu.Unlock()

	for _, a := range apps {
		a.Close()
	}
	r.anon.Close()
}

func (r *Registry) janitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(max(r.deps.IdleTimeout/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.evictIdle(r.now()); n > 0 {
				r.deps.Logger.Debug("evicted idle sessions", "count", n)
			}
		case <-r.done:
			return
		}
	}
}

// evictIdle closes the Apps unused for longer than the idle timeout.
func (r *Registry) evictIdle(now time.Time) int {
	var idle []*App

	r.mu.Lock()
	for id, a := range r.apps {
		if a.idleSince(now) > r.deps.IdleTimeout {
			idle = append(idle, a)
			delete(r.apps, id)
		}
	}
	r.mu.Unlock()

	for _, a := range idle {
		a.Close()
	}
	return len(idle)
}
