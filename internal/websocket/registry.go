package websocket

import (
	"sync"
	"time"

	"wedding-sync-server/pkg/protocol"
)

// Connection is the registry's view of one live socket: identity, the event
// it is subscribed to, and the last heartbeat. It exists from transport
// connect until disconnect or idle eviction.
type Connection struct {
	ID       string
	UserID   string
	EventID  string
	Platform protocol.Platform
	LastSeen time.Time
}

// Registry tracks live connections and their event subscriptions. It is the
// only concurrently-accessed in-memory structure on the server; every method
// is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	byEvent map[string]map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*Connection),
		byEvent: make(map[string]map[string]bool),
	}
}

// Register creates the connection in unsubscribed state, or refreshes its
// identity if it already exists (a register message after the socket was
// accepted).
func (r *Registry) Register(connID, userID string, platform protocol.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		if userID != "" {
			conn.UserID = userID
		}
		if platform != "" {
			conn.Platform = platform
		}
		conn.LastSeen = time.Now()
		return
	}

	r.conns[connID] = &Connection{
		ID:       connID,
		UserID:   userID,
		Platform: platform,
		LastSeen: time.Now(),
	}
}

// Subscribe binds the connection to an event id. A connection holds one
// subscription at a time; re-subscribing replaces the prior binding.
func (r *Registry) Subscribe(connID, eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}

	if conn.EventID != "" {
		r.removeFromIndex(conn.EventID, connID)
	}

	conn.EventID = eventID
	conn.LastSeen = time.Now()
	if r.byEvent[eventID] == nil {
		r.byEvent[eventID] = make(map[string]bool)
	}
	r.byEvent[eventID][connID] = true
	return true
}

func (r *Registry) Unsubscribe(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok || conn.EventID == "" {
		return
	}
	r.removeFromIndex(conn.EventID, connID)
	conn.EventID = ""
}

func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	if conn.EventID != "" {
		r.removeFromIndex(conn.EventID, connID)
	}
	delete(r.conns, connID)
}

// Subscribers returns the ids of all connections currently bound to the
// event id.
func (r *Registry) Subscribers(eventID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byEvent[eventID]))
	for id := range r.byEvent[eventID] {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Heartbeat(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[connID]; ok {
		conn.LastSeen = time.Now()
	}
}

// Get returns a copy of the connection's state.
func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// EvictInactive removes every connection whose last heartbeat is older than
// maxIdle and returns the evicted ids so the hub can close their sockets.
// No error is surfaced to the evicted client.
func (r *Registry) EvictInactive(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	var evicted []string
	for id, conn := range r.conns {
		if conn.LastSeen.Before(cutoff) {
			if conn.EventID != "" {
				r.removeFromIndex(conn.EventID, id)
			}
			delete(r.conns, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// removeFromIndex must be called with the write lock held.
func (r *Registry) removeFromIndex(eventID, connID string) {
	delete(r.byEvent[eventID], connID)
	if len(r.byEvent[eventID]) == 0 {
		delete(r.byEvent, eventID)
	}
}
