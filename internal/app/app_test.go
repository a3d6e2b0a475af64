package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/gateway"
	"github.com/mymapsapp/mymaps-server/internal/logger"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
	"github.com/mymapsapp/mymaps-server/internal/sse"
)

type backendStub struct {
	mu    sync.Mutex
	auths []string
}

func (b *backendStub) lastAuth() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.auths) == 0 {
		return ""
	}
	return b.auths[len(b.auths)-1]
}

func newRegistry(t *testing.T, push *sse.Manager) (*Registry, *backendStub) {
	t.Helper()
	stub := &backendStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.auths = append(stub.auths, r.Header.Get("Authorization"))
		stub.mu.Unlock()

		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "follower_count": 1})
	}))
	t.Cleanup(srv.Close)

	gw := gateway.New(gateway.Config{BaseURL: srv.URL, AnonKey: "anon"}, logger.Discard())
	t.Cleanup(gw.Close)

	r := NewRegistry(Deps{
		Gateway:     gw,
		Push:        push,
		Cache:       querycache.Options{RetryDelay: time.Millisecond},
		IdleTimeout: time.Minute,
		Logger:      logger.Discard(),
	})
	t.Cleanup(r.Close)
	return r, stub
}

func session(id, token string) *auth.Session {
	return &auth.Session{ID: id, UserID: "user-" + id, AccessToken: token}
}

func TestRegistry_OneAppPerSession(t *testing.T) {
	r, _ := newRegistry(t, nil)

	anon := r.For(nil)
	assert.Same(t, anon, r.For(nil))
	assert.Empty(t, anon.ViewerID)

	a := r.For(session("s1", "tok"))
	assert.Same(t, a, r.For(session("s1", "tok")))
	assert.Equal(t, "user-s1", a.ViewerID)
	assert.NotSame(t, a, r.For(session("s2", "tok")))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_AnonymousWritesRejected(t *testing.T) {
	r, _ := newRegistry(t, nil)
	_, err := r.For(nil).Mutations.ToggleFollow(context.Background(), "u1")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestRegistry_FollowsTokenRefresh(t *testing.T) {
	r, stub := newRegistry(t, nil)
	ctx := context.Background()

	a := r.For(session("s1", "first"))
	_, err := a.Users.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer first", stub.lastAuth())

	assert.Same(t, a, r.For(session("s1", "second")))
	_, err = a.Users.Profile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", stub.lastAuth())

	_, err = r.For(nil).Users.Profile(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, "Bearer anon", stub.lastAuth())
}

func TestRegistry_EvictsIdleSessions(t *testing.T) {
	r, _ := newRegistry(t, nil)
	start := time.Now()
	r.now = func() time.Time { return start }

	r.For(session("idle", "tok"))
	r.For(session("busy", "tok"))

	r.now = func() time.Time { return start.Add(50 * time.Second) }
	r.Touch("busy")

	assert.Equal(t, 1, r.evictIdle(start.Add(90*time.Second)))
	assert.Equal(t, 1, r.Len())

	r.Drop("busy")
	assert.Zero(t, r.Len())
}

func TestRegistry_PushesSessionCacheChanges(t *testing.T) {
	push := sse.NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go push.Start(ctx)

	r, _ := newRegistry(t, push)
	client, err := push.Connect("s1")
	require.NoError(t, err)

	a := r.For(session("s1", "tok"))
	a.Cache.SetData(querykey.Profile("u1"), "data")

	select {
	case e := <-client.EventChan:
		assert.Equal(t, sse.EventCacheUpdated, e.Type)
		assert.Equal(t, "s1", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("cache change was not pushed")
	}
}
