package websocket

import (
	"sync"

	"github.com/sirupsen/logrus"

	"trueinterview/pkg/interfaces"
)

// Registry tracks live connections by id
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic;
// rooms hold ids and resolve them here at send time
type Registry struct {
	mu          sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	connections map[string]*Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// RegisterConnection adds a connection
// FUNCTIONAL DISCOVERY: a clashing id replaces the older connection, which is
// closed asynchronously to avoid deadlock during registration
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.connections[conn.ID()]; exists && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				logrus.WithError(err).Debug("Failed to close replaced connection")
			}
		}()
	}

	r.connections[conn.ID()] = conn
	return nil
}

// UnregisterConnection removes conn if it is still the registered instance.
// Idempotent.
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the same instance may remove itself, never a replacement
	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
	}
}

// Lookup returns the live connection for an id with O(1) cost
func (r *Registry) Lookup(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connID]
	if !exists {
		return nil, false
	}
	return conn, true
}

// CloseAll closes every registered connection; used at shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
	}
}
