package querycache

import (
	"context"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// State is the lifecycle state of an entry.
type State uint8

// Entry states.
const (
	StateIdle State = iota
	StateFetching
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one cached query result.
type Entry struct {
	Key querykey.Key
	// Data is meaningful only when HasData is set. A failed refresh keeps the previous data.
	Data    any
	HasData bool
	// FetchedAt is when Data was last confirmed by the backend. Zero when never confirmed.
	FetchedAt time.Time
	State     State
	Err       error
	// Optimistic marks data written ahead of a pending mutation.
	Optimistic  bool
	Invalidated bool
	// Version increases with every change of any entry in the cache. Of two snapshots of
	// one key, the one with the higher Version is the later state.
	Version uint64
}

// Stale reports whether the entry needs a refetch at now under staleTime.
func (e Entry) Stale(now time.Time, staleTime time.Duration) bool {
	return !e.HasData || e.Invalidated || e.FetchedAt.IsZero() || now.Sub(e.FetchedAt) >= staleTime
}

// DataAs returns the entry's data as T.
func DataAs[T any](e Entry) (T, bool) {
	var zero T
	if !e.HasData {
		return zero, false
	}
	v, ok := e.Data.(T)
	return v, ok
}

// Get fetches key through c and asserts the result to T.
func Get[T any](ctx context.Context, c *Cache, key querykey.Key, loader func(context.Context) (T, error), staleTime time.Duration) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) { return loader(ctx) }, staleTime)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.Internalf("query %s holds %T", key, v)
	}
	return t, nil
}

// SetOption tunes SetData and Update.
type SetOption func(*setOptions)

type setOptions struct {
	optimistic  bool
	unconfirmed bool
	seedAt      *time.Time
}

// Optimistic marks the write as pending confirmation. The entry keeps its FetchedAt and
// is served without refetching until MarkFresh, a plain SetData or Invalidate.
func Optimistic() SetOption {
	return func(o *setOptions) { o.optimistic = true }
}

// SeededAt writes only when the entry holds no data or data older than at, is not
// optimistic and has no load running. Used to seed detail entries from list results.
func SeededAt(at time.Time) SetOption {
	return func(o *setOptions) { o.seedAt = &at }
}

// Unconfirmed writes data the backend has not confirmed, such as a rollback value. The
// entry keeps its FetchedAt and is no longer optimistic.
func Unconfirmed() SetOption {
	return func(o *setOptions) { o.unconfirmed = true }
}
