package querycache

import "github.com/mymapsapp/mymaps-server/internal/querykey"

// ChangeKind describes what happened to an entry.
type ChangeKind uint8

// Change kinds.
const (
	// ChangeUpdated means the entry's data changed.
	ChangeUpdated ChangeKind = iota + 1
	// ChangeState means only state, error or freshness changed.
	ChangeState
	// ChangeInvalidated means the entry was marked stale.
	ChangeInvalidated
	// ChangeRemoved means the entry was dropped.
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeUpdated:
		return "updated"
	case ChangeState:
		return "state"
	case ChangeInvalidated:
		return "invalidated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after the cache lock is released, so concurrent
// changes of one key can reach a listener out of order. Entry.Version orders them.
type Change struct {
	Kind  ChangeKind
	Entry Entry
}

// Listener receives changes synchronously on the goroutine that caused them.
// It must not block.
type Listener func(Change)

type notification struct {
	fn     Listener
	change Change
}

// Subscribe registers fn for changes to key and marks the entry as in use: it is
// refetched in the background on invalidation and never garbage collected. The returned
// func unsubscribes.
func (c *Cache) Subscribe(key querykey.Key, fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if e.subscribers == nil {
		e.subscribers = make(map[int]Listener)
	}
	c.nextSubID++
	subID := c.nextSubID
	e.subscribers[subID] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(e.subscribers, subID)
		e.lastAccess = c.now()
	}
}

// Watch registers fn for changes to every entry. The returned func stops watching.
func (c *Cache) Watch(fn Listener) (stop func()) {
	c.mu.Lock()
	c.nextSubID++
	watchID := c.nextSubID
	c.watchers[watchID] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, watchID)
	}
}

// Subscribers returns how many listeners key has.
func (c *Cache) Subscribers(key querykey.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return len(e.subscribers)
	}
	return 0
}

func (c *Cache) collectLocked(e *entry, kind ChangeKind) []notification {
	c.version++
	e.version = c.version
	if len(e.subscribers) == 0 && len(c.watchers) == 0 {
		return nil
	}
	change := Change{Kind: kind, Entry: e.snapshot()}
	out := make([]notification, 0, len(e.subscribers)+len(c.watchers))
	for _, fn := range e.subscribers {
		out = append(out, notification{fn: fn, change: change})
	}
	for _, fn := range c.watchers {
		out = append(out, notification{fn: fn, change: change})
	}
	return out
}

func (c *Cache) dispatch(ns []notification) {
	for _, n := range ns {
		n.fn(n.change)
	}
}
