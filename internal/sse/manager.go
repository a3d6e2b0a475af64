package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/id"
	"github.com/mymapsapp/mymaps-server/internal/mutation"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

const (
	eventBuffer  = 1000
	clientBuffer = 100
)

// Client represents a connected SSE client.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	SessionID   string
}

// Manager fans events out to connected clients.
type Manager struct {
	clients map[string]*Client
	events  chan Event
	logger  *slog.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewManager creates a new SSE Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		events:  make(chan Event, eventBuffer),
		logger:  logger,
	}
}

// Start runs the broadcast loop until ctx is done or Shutdown drains the queue.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("SSE manager starting")
	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				return
			}
			m.broadcast(event)
		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers the queued ones and closes all clients.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	close(m.events)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("SSE event drain timeout, some events may be lost")
	}

	m.closeAllClients()
	m.logger.Info("SSE manager shutdown complete")
	return nil
}

func (m *Manager) broadcast(event Event) {
	var delivered, dropped int

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		if event.SessionID != "" && event.SessionID != client.SessionID {
			continue
		}
		// Non-blocking send (drop if client is slow/stuck).
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow client",
				slog.String("client_id", client.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	m.logger.Debug("event broadcast",
		slog.String("event_type", string(event.Type)),
		slog.Group("stats",
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped)))
}

// Connect registers a client that receives the events of sessionID.
func (m *Manager) Connect(sessionID string) (*Client, error) {
	clientID, err := id.Generate(id.PrefixSubscriber)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		SessionID:   sessionID,
		EventChan:   make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("session_id", sessionID),
		slog.Int("total_clients", total))
	return client, nil
}

// Disconnect removes a client and closes its channels.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, clientID)
	total := len(m.clients)
	m.mu.Unlock()

	close(client.Done)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", total))
}

// Emit queues an event for broadcasting. It never blocks.
func (m *Manager) Emit(event Event) {
	// Hold read lock through the send so Shutdown cannot close the channel under us.
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()

	if m.shutdown {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Error("SSE event channel full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}

// WatchCache forwards every change of cache to the streams of sessionID. The returned
// func stops forwarding.
func (m *Manager) WatchCache(sessionID string, cache *querycache.Cache) (stop func()) {
	return cache.Watch(newCacheForwarder(m, sessionID).forward)
}

// cacheForwarder emits the changes of one session's cache in version order per key.
// A change that arrives after a newer one of the same key is dropped.
type cacheForwarder struct {
	manager   *Manager
	sessionID string

	mu   sync.Mutex
	sent map[querykey.Key]uint64
}

func newCacheForwarder(m *Manager, sessionID string) *cacheForwarder {
	return &cacheForwarder{
		manager:   m,
		sessionID: sessionID,
		sent:      make(map[querykey.Key]uint64),
	}
}

func (f *cacheForwarder) forward(change querycache.Change) {
	key := change.Entry.Key

	f.mu.Lock()
	defer f.mu.Unlock()

	if change.Entry.Version <= f.sent[key] {
		f.manager.logger.Debug("dropping out-of-order cache change",
			slog.String("key", key.String()),
			slog.Uint64("version", change.Entry.Version))
		return
	}
	f.sent[key] = change.Entry.Version
	f.manager.Emit(NewCacheEvent(f.sessionID, change))
}

// MutationFailures returns a callback that reports failed writes of sessionID.
func (m *Manager) MutationFailures(sessionID string) func(mutation.Failure) {
	return func(f mutation.Failure) {
		m.Emit(NewMutationFailedEvent(sessionID, f))
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// closeAllClients signals every stream to end.
func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
	}
	m.clients = make(map[string]*Client)
}
