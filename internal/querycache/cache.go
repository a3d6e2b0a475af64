// Package querycache is the in-memory store of fetched query results for one application
// session. It de-duplicates concurrent loads, honors per-family stale times, retries
// network-class failures once, and keeps the last good data when a refresh fails.
//
// Ordering: every entry carries a generation. SetData, Cancel, Invalidate and Remove start
// a new generation, and a loader result is applied only if the entry's generation is still
// the one the load started in. Results of superseded loads are dropped on arrival.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// ErrSuperseded is returned by Fetch when every attempt was overtaken by a newer write.
var ErrSuperseded = errors.New("query superseded by a newer request")

// maxFetchAttempts bounds how often Fetch restarts after its load was superseded.
const maxFetchAttempts = 3

// Loader produces the authoritative value for a key.
type Loader func(ctx context.Context) (any, error)

// Options configures a Cache.
type Options struct {
	// GCTime is how long an unused, unsubscribed entry survives. Default 5m.
	GCTime time.Duration
	// RetryDelay is the pause before the single retry of a network failure. Default 1s.
	RetryDelay time.Duration
	Logger     *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[querykey.Key]*entry
	watchers  map[int]Listener
	nextSubID int
	version   uint64

	flights singleflight.Group
	bg      sync.WaitGroup

	gcTime     time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

type entry struct {
	key         querykey.Key
	data        any
	hasData     bool
	fetchedAt   time.Time
	state       State
	err         error
	optimistic  bool
	invalidated bool

	generation uint64
	version    uint64
	fetching   int
	abort      context.CancelFunc

	loader      Loader
	subscribers map[int]Listener
	lastAccess  time.Time
}

// New creates a cache and starts its garbage collector. Call Close to stop it.
func New(opts Options) *Cache {
	if opts.GCTime <= 0 {
		opts.GCTime = 5 * time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:    make(map[querykey.Key]*entry),
		watchers:   make(map[int]Listener),
		gcTime:     opts.GCTime,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
		now:        opts.Now,
		ctx:        ctx,
		cancel:     cancel,
	}

	c.bg.Add(1)
	go c.janitor()

	return c
}

// Close stops the garbage collector, aborts in-flight loads and waits for background
// refetches to return.
func (c *Cache) Close() {
	c.cancel()
	c.bg.Wait()
}

// Read returns a snapshot of the entry for key. It never blocks on a load.
func (c *Cache) Read(key querykey.Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{Key: key, State: StateIdle}, false
	}
	e.lastAccess = c.now()
	return e.snapshot(), true
}

// Entries returns snapshots of every entry matching pred that holds data.
func (c *Cache) Entries(pred querykey.Predicate) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Entry
	for k, e := range c.entries {
		if e.hasData && pred(k) {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Fetch returns the data for key, calling loader only when the entry is missing, stale,
// invalidated or failed. Concurrent fetches of the same key share one loader call.
// Optimistic entries are returned as-is until the pending mutation settles.
func (c *Cache) Fetch(ctx context.Context, key querykey.Key, loader Loader, staleTime time.Duration) (any, error) {
	for range maxFetchAttempts {
		c.mu.Lock()
		e := c.entryLocked(key)
		now := c.now()
		e.lastAccess = now
		e.loader = loader

		if e.servable(now, staleTime) {
			data := e.data
			c.mu.Unlock()
			return data, nil
		}

		gen := e.generation
		var changed []notification
		if e.state != StateFetching {
			e.state = StateFetching
			changed = c.collectLocked(e, ChangeState)
		}
		c.mu.Unlock()
		c.dispatch(changed)

		ch := c.flights.DoChan(flightKey(key, gen), func() (any, error) {
			return c.load(ctx, key, gen, loader)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			o := res.Val.(outcome)
			if o.superseded {
				continue
			}
			return o.data, nil
		}
	}
	return nil, ErrSuperseded
}

// outcome is what a shared flight hands every waiter.
type outcome struct {
	data       any
	superseded bool
}

func flightKey(key querykey.Key, gen uint64) string {
	return fmt.Sprintf("%s@%d", key, gen)
}

// load runs loader for generation gen and applies its result if gen is still current.
func (c *Cache) load(callerCtx context.Context, key querykey.Key, gen uint64, loader Loader) (any, error) {
	// The load outlives any single waiter; it ends on Cancel, supersession or Close.
	ctx, abort := context.WithCancel(context.WithoutCancel(callerCtx))
	defer abort()
	stop := context.AfterFunc(c.ctx, abort)
	defer stop()

	c.mu.Lock()
	owner, ok := c.entries[key]
	if ok && owner.generation == gen {
		owner.fetching++
		owner.abort = abort
	} else {
		owner = nil
	}
	c.mu.Unlock()

	backoff := retry.WithMaxRetries(1, retry.NewConstant(c.retryDelay))
	data, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (any, error) {
		v, err := loader(ctx)
		if errors.Retryable(err) {
			c.logger.Debug("retrying query after network failure", "key", key.String(), "error", err)
			return nil, retry.RetryableError(err)
		}
		return v, err
	})

	c.mu.Lock()
	if owner != nil {
		owner.fetching--
		if owner.generation == gen {
			owner.abort = nil
		}
	}
	e, ok := c.entries[key]
	if !ok || e != owner || e.generation != gen {
		c.mu.Unlock()
		c.logger.Debug("dropping superseded query result", "key", key.String(), "generation", gen)
		return outcome{superseded: true}, nil
	}

	if err != nil {
		// Keep the last good data.
		e.state = StateError
		e.err = err
		changed := c.collectLocked(e, ChangeState)
		c.mu.Unlock()
		c.dispatch(changed)
		c.logger.Warn("query failed", "key", key.String(), "kind", errors.CodeOf(err), "error", err)
		return nil, err
	}

	e.data = data
	e.hasData = true
	e.fetchedAt = c.now()
	e.state = StateSuccess
	e.err = nil
	e.optimistic = false
	e.invalidated = false
	changed := c.collectLocked(e, ChangeUpdated)
	c.mu.Unlock()
	c.dispatch(changed)

	return outcome{data: data}, nil
}

// SetData overwrites the data for key and supersedes any in-flight load.
func (c *Cache) SetData(key querykey.Key, value any, opts ...SetOption) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	e := c.entryLocked(key)
	now := c.now()

	if o.seedAt != nil {
		if e.optimistic || e.fetching > 0 || (e.hasData && !e.fetchedAt.Before(*o.seedAt)) {
			c.mu.Unlock()
			return
		}
	}

	c.supersedeLocked(e)
	e.data = value
	e.hasData = true
	e.state = StateSuccess
	e.err = nil
	e.lastAccess = now
	switch {
	case o.optimistic:
		// The timestamp still describes the last confirmed data.
		e.optimistic = true
	case o.unconfirmed:
		e.optimistic = false
	case o.seedAt != nil:
		e.fetchedAt = *o.seedAt
		e.optimistic = false
		e.invalidated = false
	default:
		e.fetchedAt = now
		e.optimistic = false
		e.invalidated = false
	}
	changed := c.collectLocked(e, ChangeUpdated)
	c.mu.Unlock()
	c.dispatch(changed)
}

// Update applies fn to the data of every entry matching pred. fn must not mutate its
// argument; it returns the replacement and whether anything changed. Changed entries are
// superseded like SetData. Update returns the keys it changed.
func (c *Cache) Update(pred querykey.Predicate, fn func(key querykey.Key, data any) (any, bool), opts ...SetOption) []querykey.Key {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	var (
		touched []querykey.Key
		changed []notification
	)
	now := c.now()
	for k, e := range c.entries {
		if !e.hasData || !pred(k) {
			continue
		}
		next, ok := fn(k, e.data)
		if !ok {
			continue
		}
		c.supersedeLocked(e)
		e.data = next
		if o.optimistic {
			e.optimistic = true
		} else {
			e.fetchedAt = now
		}
		touched = append(touched, k)
		changed = append(changed, c.collectLocked(e, ChangeUpdated)...)
	}
	c.mu.Unlock()
	c.dispatch(changed)
	return touched
}

// MarkFresh confirms optimistic data: the entries become fresh as of now.
func (c *Cache) MarkFresh(keys ...querykey.Key) {
	c.mu.Lock()
	now := c.now()
	var changed []notification
	for _, k := range keys {
		e, ok := c.entries[k]
		if !ok || !e.hasData {
			continue
		}
		e.fetchedAt = now
		e.optimistic = false
		e.invalidated = false
		changed = append(changed, c.collectLocked(e, ChangeState)...)
	}
	c.mu.Unlock()
	c.dispatch(changed)
}

// Invalidate marks every entry matching pred stale and supersedes its in-flight load.
// Subscribed entries are refetched in the background with their last loader; the rest
// are refetched by their next Fetch. It returns the number of entries invalidated.
func (c *Cache) Invalidate(pred querykey.Predicate) int {
	type refetch struct {
		key    querykey.Key
		loader Loader
	}

	c.mu.Lock()
	var (
		refetches []refetch
		changed   []notification
		n         int
	)
	for k, e := range c.entries {
		if !pred(k) {
			continue
		}
		n++
		c.supersedeLocked(e)
		e.invalidated = true
		e.optimistic = false
		if e.state == StateFetching {
			e.state = e.settledState()
		}
		if len(e.subscribers) > 0 && e.loader != nil {
			refetches = append(refetches, refetch{key: k, loader: e.loader})
		}
		changed = append(changed, c.collectLocked(e, ChangeInvalidated)...)
	}
	c.mu.Unlock()
	c.dispatch(changed)

	for _, r := range refetches {
		c.bg.Add(1)
		go func() {
			defer c.bg.Done()
			if _, err := c.Fetch(c.ctx, r.key, r.loader, 0); err != nil && c.ctx.Err() == nil {
				c.logger.Debug("background refetch failed", "key", r.key.String(), "error", err)
			}
		}()
	}
	return n
}

// Cancel logically aborts the in-flight load of key: its result will be discarded and its
// network request is cancelled.
func (c *Cache) Cancel(key querykey.Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	wasFetching := e.state == StateFetching
	c.supersedeLocked(e)
	if wasFetching {
		e.state = e.settledState()
	}
	changed := c.collectLocked(e, ChangeState)
	c.mu.Unlock()
	c.dispatch(changed)
}

// Remove drops the entry for key.
func (c *Cache) Remove(key querykey.Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.supersedeLocked(e)
	delete(c.entries, key)
	changed := c.collectLocked(e, ChangeRemoved)
	c.mu.Unlock()
	c.dispatch(changed)
}

// Len returns the number of entries, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) entryLocked(key querykey.Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, state: StateIdle, lastAccess: c.now()}
		c.entries[key] = e
	}
	return e
}

// supersedeLocked starts a new generation and aborts the running load, if any.
func (c *Cache) supersedeLocked(e *entry) {
	e.generation++
	if e.abort != nil {
		e.abort()
		e.abort = nil
	}
}

// servable reports whether Fetch can answer from the entry without loading.
func (e *entry) servable(now time.Time, staleTime time.Duration) bool {
	if !e.hasData {
		return false
	}
	if e.optimistic {
		return true
	}
	if e.invalidated || e.state == StateError {
		return false
	}
	return now.Sub(e.fetchedAt) < staleTime
}

// settledState is the state an entry returns to when its load is abandoned.
func (e *entry) settledState() State {
	switch {
	case e.err != nil:
		return StateError
	case e.hasData:
		return StateSuccess
	default:
		return StateIdle
	}
}

func (e *entry) snapshot() Entry {
	return Entry{
		Key:         e.key,
		Data:        e.data,
		HasData:     e.hasData,
		FetchedAt:   e.fetchedAt,
		State:       e.state,
		Err:         e.err,
		Optimistic:  e.optimistic,
		Invalidated: e.invalidated,
		Version:     e.version,
	}
}

func (c *Cache) janitor() {
	defer c.bg.Done()

	interval := max(c.gcTime/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if n := c.collectGarbage(); n > 0 {
				c.logger.Debug("evicted unused queries", "count", n)
			}
		}
	}
}

// collectGarbage evicts entries that are unsubscribed, idle, settled and untouched for
// longer than gcTime.
func (c *Cache) collectGarbage() int {
	c.mu.Lock()
	now := c.now()
	var (
		changed []notification
		evicted int
	)
	for k, e := range c.entries {
		if len(e.subscribers) > 0 || e.fetching > 0 || e.optimistic || e.state == StateFetching {
			continue
		}
		if now.Sub(e.lastAccess) <= c.gcTime {
			continue
		}
		delete(c.entries, k)
		evicted++
		changed = append(changed, c.collectLocked(e, ChangeRemoved)...)
	}
	c.mu.Unlock()
	c.dispatch(changed)
	return evicted
}
