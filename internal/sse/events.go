// Package sse pushes query cache changes and mutation failures to view clients as
// Server-Sent Events.
package sse

import (
	"time"

	"github.com/mymapsapp/mymaps-server/internal/mutation"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is the first event of every stream.
	EventConnected EventType = "connected"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventCacheUpdated carries the new data or state of a cache entry.
	EventCacheUpdated EventType = "cache.updated"
	// EventCacheInvalidated tells the view an entry is stale and will be refetched.
	EventCacheInvalidated EventType = "cache.invalidated"
	// EventCacheRemoved tells the view an entry is gone.
	EventCacheRemoved EventType = "cache.removed"

	// EventMutationFailed reports a write the backend rejected or never received.
	EventMutationFailed EventType = "mutation.failed"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// SessionID limits delivery to the streams of one session. Empty broadcasts.
	SessionID string `json:"-"`
}

// CacheEventData is the payload of cache events.
type CacheEventData struct {
	Key        querykey.Key `json:"key"`
	Data       any          `json:"data,omitempty"`
	State      string       `json:"state"`
	Optimistic bool         `json:"optimistic"`
	FetchedAt  *time.Time   `json:"fetched_at,omitempty"`
	Error      string       `json:"error,omitempty"`
	// Version orders events of one key; a view keeps the highest it has seen.
	Version uint64 `json:"version"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewCacheEvent converts a cache change of sessionID. State-only changes are reported
// as updates so the view learns when optimistic data is confirmed.
func NewCacheEvent(sessionID string, change querycache.Change) Event {
	e := change.Entry
	data := CacheEventData{
		Key:        e.Key,
		State:      e.State.String(),
		Optimistic: e.Optimistic,
		Version:    e.Version,
	}
	if !e.FetchedAt.IsZero() {
		at := e.FetchedAt
		data.FetchedAt = &at
	}
	if e.Err != nil {
		data.Error = e.Err.Error()
	}

	typ := EventCacheUpdated
	switch change.Kind {
	case querycache.ChangeInvalidated:
		typ = EventCacheInvalidated
	case querycache.ChangeRemoved:
		typ = EventCacheRemoved
	default:
		if e.HasData {
			data.Data = e.Data
		}
	}

	return Event{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
}

// NewMutationFailedEvent reports f to the streams of sessionID.
func NewMutationFailedEvent(sessionID string, f mutation.Failure) Event {
	return Event{
		Type:      EventMutationFailed,
		Data:      f,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}
