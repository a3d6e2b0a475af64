package querycache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/logger"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := New(Options{
		GCTime:     5 * time.Minute,
		RetryDelay: time.Millisecond,
		Logger:     logger.Discard(),
		Now:        clock.Now,
	})
	t.Cleanup(c.Close)
	return c, clock
}

// countingLoader returns value and counts calls.
func countingLoader(value any, calls *atomic.Int32) Loader {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestFetch_FreshEntrySkipsLoader(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()
	key := querykey.Post("p1")
	var calls atomic.Int32

	v, err := c.Fetch(ctx, key, countingLoader("first", &calls), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	clock.Advance(30 * time.Second)
	v, err = c.Fetch(ctx, key, countingLoader("second", &calls), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(31 * time.Second)
	v, err = c.Fetch(ctx, key, countingLoader("second", &calls), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
	assert.Equal(t, int32(2), calls.Load())

	entry, ok := c.Read(key)
	require.True(t, ok)
	assert.Equal(t, StateSuccess, entry.State)
	assert.Equal(t, clock.Now(), entry.FetchedAt)
}

func TestFetch_DeduplicatesConcurrentCalls(t *testing.T) {
	c, _ := newTestCache(t)
	key := querykey.Explore(0)
	release := make(chan struct{})
	var calls atomic.Int32

	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return []string{"p1", "p2"}, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), key, loader, time.Minute)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool {
		e, _ := c.Read(key)
		return e.State == StateFetching && calls.Load() == 1
	}, time.Second, time.Millisecond)

	// Give the second caller time to join the flight before it resolves.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, results[0], results[1])
}

func TestFetch_FailedRefreshKeepsData(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := querykey.Profile("u1")

	_, err := c.Fetch(ctx, key, func(context.Context) (any, error) { return "good", nil }, time.Minute)
	require.NoError(t, err)

	c.Invalidate(querykey.Exact(key))

	_, err = c.Fetch(ctx, key, func(context.Context) (any, error) {
		return nil, errors.NotFound("profile gone")
	}, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	entry, ok := c.Read(key)
	require.True(t, ok)
	assert.Equal(t, StateError, entry.State)
	assert.True(t, entry.HasData)
	assert.Equal(t, "good", entry.Data)
}

func TestFetch_RetriesNetworkErrorsOnce(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32

	v, err := c.Fetch(context.Background(), querykey.Feed(0), func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.Network("connection reset")
		}
		return "feed", nil
	}, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "feed", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_GivesUpAfterOneRetry(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32

	_, err := c.Fetch(context.Background(), querykey.Feed(0), func(context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.Network("offline")
	}, time.Minute)

	assert.ErrorIs(t, err, errors.ErrNetwork)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_DoesNotRetryOtherKinds(t *testing.T) {
	c, _ := newTestCache(t)

	for _, loadErr := range []error{
		errors.NotFound("no such post"),
		errors.Validation("bad input"),
		errors.Permission("private"),
	} {
		var calls atomic.Int32
		_, err := c.Fetch(context.Background(), querykey.Post("p-missing"), func(context.Context) (any, error) {
			calls.Add(1)
			return nil, loadErr
		}, time.Minute)

		assert.ErrorIs(t, err, loadErr)
		assert.Equal(t, int32(1), calls.Load(), loadErr.Error())
	}
}

func TestFetch_SupersededResultIsDiscarded(t *testing.T) {
	c, _ := newTestCache(t)
	key := querykey.Following("v", "t")
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan any, 1)
	go func() {
		v, err := c.Fetch(context.Background(), key, func(context.Context) (any, error) {
			close(started)
			<-release
			return false, nil
		}, time.Minute)
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	c.SetData(key, true)
	close(release)

	// The waiter restarts and is answered by the newer, fresh data.
	assert.Equal(t, true, <-done)
	entry, _ := c.Read(key)
	assert.Equal(t, true, entry.Data)
}

func TestFetch_ContextCancelReleasesWaiter(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, querykey.AllTags(), func(context.Context) (any, error) {
			<-release
			return nil, nil
		}, time.Minute)
		errCh <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestCancel_AbortsInFlightLoad(t *testing.T) {
	c, _ := newTestCache(t)
	key := querykey.Search("ramen")
	aborted := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	go func() {
		_, _ = c.Fetch(context.Background(), key, func(ctx context.Context) (any, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-ctx.Done()
				close(aborted)
				return nil, ctx.Err()
			}
			return "restarted", nil
		}, time.Minute)
	}()

	<-started
	c.Cancel(key)

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("loader context was not cancelled")
	}
}

func TestSetData_OptimisticKeepsTimestamp(t *testing.T) {
	c, clock := newTestCache(t)
	key := querykey.Following("v", "t")
	var calls atomic.Int32

	_, err := c.Fetch(context.Background(), key, countingLoader(false, &calls), time.Minute)
	require.NoError(t, err)
	fetchedAt := clock.Now()

	clock.Advance(10 * time.Minute)
	c.SetData(key, true, Optimistic())

	entry, _ := c.Read(key)
	assert.Equal(t, true, entry.Data)
	assert.True(t, entry.Optimistic)
	assert.Equal(t, fetchedAt, entry.FetchedAt)

	// Stale by time, but optimistic data is served until the mutation settles.
	v, err := c.Fetch(context.Background(), key, countingLoader(false, &calls), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, int32(1), calls.Load())

	c.MarkFresh(key)
	entry, _ = c.Read(key)
	assert.False(t, entry.Optimistic)
	assert.Equal(t, clock.Now(), entry.FetchedAt)
}

func TestSetData_SeedDoesNotOverwriteNewer(t *testing.T) {
	c, clock := newTestCache(t)
	key := querykey.Post("p1")

	c.SetData(key, "detail")
	older := clock.Now().Add(-time.Second)
	c.SetData(key, "from list", SeededAt(older))

	entry, _ := c.Read(key)
	assert.Equal(t, "detail", entry.Data)

	clock.Advance(time.Minute)
	c.SetData(key, "newer list", SeededAt(clock.Now()))
	entry, _ = c.Read(key)
	assert.Equal(t, "newer list", entry.Data)

	c.SetData(querykey.Post("p2"), "seeded", SeededAt(clock.Now()))
	entry, ok := c.Read(querykey.Post("p2"))
	require.True(t, ok)
	assert.Equal(t, "seeded", entry.Data)
}

func TestInvalidate_RefetchesSubscribedEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	subscribed := querykey.Followers("t", "followers")
	lazy := querykey.Followers("t", "following")
	var subscribedCalls, lazyCalls atomic.Int32

	_, err := c.Fetch(ctx, subscribed, countingLoader("list", &subscribedCalls), time.Minute)
	require.NoError(t, err)
	_, err = c.Fetch(ctx, lazy, countingLoader("list", &lazyCalls), time.Minute)
	require.NoError(t, err)

	changes := make(chan Change, 16)
	unsubscribe := c.Subscribe(subscribed, func(ch Change) { changes <- ch })
	defer unsubscribe()

	n := c.Invalidate(querykey.Prefix(querykey.FamilyFollowers, "t"))
	assert.Equal(t, 2, n)

	assert.Eventually(t, func() bool { return subscribedCalls.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), lazyCalls.Load())

	entry, _ := c.Read(lazy)
	assert.True(t, entry.Invalidated)
	assert.Equal(t, "list", entry.Data, "invalidation keeps data for stale-while-revalidate")

	_, err = c.Fetch(ctx, lazy, countingLoader("list", &lazyCalls), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lazyCalls.Load())

	assert.Equal(t, ChangeInvalidated, (<-changes).Kind)
}

func TestUpdate_TransformsMatchingEntries(t *testing.T) {
	c, _ := newTestCache(t)
	c.SetData(querykey.Profile("t"), 10)
	c.SetData(querykey.Profile("other"), 3)
	c.SetData(querykey.AllUsers(), 7)

	touched := c.Update(querykey.Any(querykey.Exact(querykey.Profile("t")), querykey.Exact(querykey.AllUsers())),
		func(_ querykey.Key, data any) (any, bool) { return data.(int) + 1, true },
		Optimistic())

	assert.ElementsMatch(t, []querykey.Key{querykey.Profile("t"), querykey.AllUsers()}, touched)

	e, _ := c.Read(querykey.Profile("t"))
	assert.Equal(t, 11, e.Data)
	assert.True(t, e.Optimistic)
	e, _ = c.Read(querykey.Profile("other"))
	assert.Equal(t, 3, e.Data)
}

func TestRemove_DropsEntryAndDiscardsLoad(t *testing.T) {
	c, _ := newTestCache(t)
	key := querykey.Post("p1")
	c.SetData(key, "post")

	var removed atomic.Bool
	stop := c.Watch(func(ch Change) {
		if ch.Kind == ChangeRemoved && ch.Entry.Key == key {
			removed.Store(true)
		}
	})
	defer stop()

	c.Remove(key)

	_, ok := c.Read(key)
	assert.False(t, ok)
	assert.True(t, removed.Load())
}

func TestCollectGarbage_EvictsUnusedEntries(t *testing.T) {
	c, clock := newTestCache(t)
	c.SetData(querykey.Post("old"), "x")
	c.SetData(querykey.Post("watched"), "y")
	unsubscribe := c.Subscribe(querykey.Post("watched"), func(Change) {})
	defer unsubscribe()
	c.SetData(querykey.Following("v", "t"), true, Optimistic())

	clock.Advance(4 * time.Minute)
	c.SetData(querykey.Post("recent"), "z")
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, c.collectGarbage())

	_, ok := c.Read(querykey.Post("old"))
	assert.False(t, ok)
	for _, k := range []querykey.Key{querykey.Post("watched"), querykey.Post("recent"), querykey.Following("v", "t")} {
		_, ok := c.Read(k)
		assert.True(t, ok, k.String())
	}
}

func TestGet_TypedResult(t *testing.T) {
	c, _ := newTestCache(t)

	n, err := Get(context.Background(), c, querykey.AllTags(), func(context.Context) (int, error) { return 42, nil }, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	c.SetData(querykey.AllUsers(), "not an int")
	_, err = Get(context.Background(), c, querykey.AllUsers(), func(context.Context) (int, error) { return 7, nil }, time.Minute)
	assert.ErrorIs(t, err, errors.ErrInternal)
}

func TestWatch_VersionOrdersConcurrentChanges(t *testing.T) {
	c, _ := newTestCache(t)
	key := querykey.Following("u1", "u2")

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var got []Change
	stop := c.Watch(func(ch Change) {
		if v, _ := DataAs[int](ch.Entry); v == 1 {
			close(entered)
			<-release
		}
		mu.Lock()
		got = append(got, ch)
		mu.Unlock()
	})
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.SetData(key, 1)
	}()
	<-entered

	// The second write is delivered while the first is still held by the listener.
	c.SetData(key, 2)
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	first, _ := DataAs[int](got[0].Entry)
	last, _ := DataAs[int](got[1].Entry)
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, last)
	assert.Greater(t, got[0].Entry.Version, got[1].Entry.Version)

	e, ok := c.Read(key)
	require.True(t, ok)
	assert.Equal(t, got[0].Entry.Version, e.Version)
}
