package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(":memory:", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeShared struct {
	mu      sync.Mutex
	rows    map[string]domain.PlaceDetails
	err     error
	upserts int
}

func newFakeShared() *fakeShared {
	return &fakeShared{rows: make(map[string]domain.PlaceDetails)}
}

func (f *fakeShared) PlaceCacheRow(_ context.Context, placeID string) (*domain.PlaceDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.rows[placeID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeShared) UpsertPlaceCache(_ context.Context, p domain.PlaceDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.rows[p.PlaceID] = p
	return nil
}

type fakeProvider struct {
	calls atomic.Int32
	place *domain.PlaceDetails
	err   error
}

func (f *fakeProvider) Details(_ context.Context, placeID string) (*domain.PlaceDetails, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	p := *f.place
	p.PlaceID = placeID
	return &p, nil
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, shared *fakeShared, provider *fakeProvider) (*Service, *Store) {
	t.Helper()
	store := newTestStore(t)
	svc := NewService(store, shared, provider, 0, logger.Discard())
	svc.now = func() time.Time { return testNow }
	return svc, store
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	in := domain.PlaceDetails{
		PlaceID:    "pl1",
		Name:       "Tasca",
		PriceLevel: domain.PriceLevelUnknown,
		Hours:      []string{"Monday: 9-5"},
		Photos:     []string{"https://img/1"},
		CachedAt:   testNow,
	}
	require.NoError(t, s.Put(ctx, in))

	in.Name = "Tasca do Chico"
	require.NoError(t, s.Put(ctx, in))

	got, err := s.Get(ctx, "pl1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Tasca do Chico", got.Name)
	assert.Equal(t, -1, got.PriceLevel)
	assert.Equal(t, []string{"Monday: 9-5"}, got.Hours)
	assert.Equal(t, []string{}, got.Types)
	assert.True(t, testNow.Equal(got.CachedAt))
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, domain.PlaceDetails{PlaceID: "old", CachedAt: testNow.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, s.Put(ctx, domain.PlaceDetails{PlaceID: "new", CachedAt: testNow}))

	n, err := s.Prune(ctx, testNow.Add(-DefaultLifetime))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestService_FreshLocalRowSkipsEverythingElse(t *testing.T) {
	shared := newFakeShared()
	provider := &fakeProvider{err: errors.Network("down")}
	svc, store := newTestService(t, shared, provider)
	require.NoError(t, store.Put(context.Background(), domain.PlaceDetails{PlaceID: "pl1", Name: "Local", CachedAt: testNow.Add(-time.Hour)}))

	got, err := svc.Details(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, "Local", got.Name)
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestService_FreshSharedRowIsCopiedLocally(t *testing.T) {
	shared := newFakeShared()
	shared.rows["pl1"] = domain.PlaceDetails{PlaceID: "pl1", Name: "Shared", CachedAt: testNow.Add(-24 * time.Hour)}
	provider := &fakeProvider{err: errors.Network("down")}
	svc, store := newTestService(t, shared, provider)

	got, err := svc.Details(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, "Shared", got.Name)

	local, err := store.Get(context.Background(), "pl1")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, "Shared", local.Name)
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestService_StaleRowsRefreshFromProvider(t *testing.T) {
	shared := newFakeShared()
	shared.rows["pl1"] = domain.PlaceDetails{PlaceID: "pl1", Name: "Old", CachedAt: testNow.Add(-31 * 24 * time.Hour)}
	provider := &fakeProvider{place: &domain.PlaceDetails{Name: "New", CachedAt: testNow}}
	svc, store := newTestService(t, shared, provider)

	got, err := svc.Details(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	assert.Equal(t, 1, shared.upserts)

	local, err := store.Get(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, "New", local.Name)
}

func TestService_ProviderFailureServesNewestStaleRow(t *testing.T) {
	shared := newFakeShared()
	shared.rows["pl1"] = domain.PlaceDetails{PlaceID: "pl1", Name: "Shared", CachedAt: testNow.Add(-32 * 24 * time.Hour)}
	provider := &fakeProvider{err: errors.Network("down")}
	svc, store := newTestService(t, shared, provider)
	require.NoError(t, store.Put(context.Background(), domain.PlaceDetails{PlaceID: "pl1", Name: "Local", CachedAt: testNow.Add(-31 * 24 * time.Hour)}))

	got, err := svc.Details(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, "Local", got.Name)
}

func TestService_NothingCachedAndNoProvider(t *testing.T) {
	svc, _ := newTestService(t, newFakeShared(), &fakeProvider{err: ErrNoProvider})

	_, err := svc.Details(context.Background(), "pl1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestService_ProviderNetworkErrorWithoutRows(t *testing.T) {
	svc, _ := newTestService(t, newFakeShared(), &fakeProvider{err: errors.Network("down")})

	_, err := svc.Details(context.Background(), "pl1")
	assert.Equal(t, errors.CodeNetwork, errors.CodeOf(err))
}

func TestGoogleProvider_Details(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/details/json", r.URL.Path)
		assert.Equal(t, "pl1", r.URL.Query().Get("place_id"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "OK",
			"result": {
				"name": "Tasca",
				"formatted_address": "Rua 1, Lisboa",
				"rating": 4.5,
				"user_ratings_total": 120,
				"types": ["restaurant", "food"],
				"geometry": {"location": {"lat": 38.7, "lng": -9.1}},
				"photos": [
					{"photo_reference": "a"}, {"photo_reference": "b"}, {"photo_reference": "c"},
					{"photo_reference": "d"}, {"photo_reference": "e"}, {"photo_reference": "f"},
					{"photo_reference": "g"}
				]
			}
		}`))
	}))
	defer server.Close()

	g := NewGoogleProvider(server.URL, "k", logger.Discard())
	defer g.Close()
	g.http = server.Client()

	got, err := g.Details(context.Background(), "pl1")
	require.NoError(t, err)
	assert.Equal(t, "Tasca", got.Name)
	assert.Equal(t, domain.PriceLevelUnknown, got.PriceLevel)
	assert.Equal(t, []string{}, got.Hours)
	assert.Len(t, got.Photos, domain.MaxPlacePhotos)
	assert.Contains(t, got.Photos[0], "maxwidth=800")
	assert.Contains(t, got.Photos[0], "photo_reference=a")
	assert.InDelta(t, 38.7, got.Lat, 1e-9)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGoogleProvider_StatusMapping(t *testing.T) {
	tests := []struct {
		status string
		want   errors.Code
	}{
		{"NOT_FOUND", errors.CodeNotFound},
		{"INVALID_REQUEST", errors.CodeNotFound},
		{"REQUEST_DENIED", errors.CodePermission},
		{"OVER_QUERY_LIMIT", errors.CodeNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": "` + tt.status + `"}`))
			}))
			defer server.Close()

			g := NewGoogleProvider(server.URL, "k", logger.Discard())
			defer g.Close()

			_, err := g.Details(context.Background(), "pl1")
			assert.Equal(t, tt.want, errors.CodeOf(err))
		})
	}
}

func TestGoogleProvider_NoKey(t *testing.T) {
	g := NewGoogleProvider("", "", logger.Discard())
	defer g.Close()

	_, err := g.Details(context.Background(), "pl1")
	assert.ErrorIs(t, err, ErrNoProvider)
}
