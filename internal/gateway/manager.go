package gateway

import "sync"

// DefaultMaxConnections caps simultaneous websocket clients when the
// configured limit is non-positive.
const DefaultMaxConnections = 50

// ConnectionManager tracks live websocket connections and enforces the
// concurrency limit.
type ConnectionManager struct {
	max int

	mu    sync.Mutex
	conns map[string]*wsConn
}

// NewConnectionManager creates a manager allowing at most max
// concurrent connections.
func NewConnectionManager(max int) *ConnectionManager {
	if max <= 0 {
		max = DefaultMaxConnections
	}
	return &ConnectionManager{
		max:   max,
		conns: make(map[string]*wsConn),
	}
}

// Add registers a connection. It reports false when the manager is at
// capacity, in which case the connection was not registered.
func (m *ConnectionManager) Add(c *wsConn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) >= m.max {
		return false
	}
	m.conns[c.id] = c
	return true
}

// Remove unregisters a connection.
func (m *ConnectionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, id)
}

// ActiveCount returns the number of registered connections.
func (m *ConnectionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// MaxConnections returns the configured limit.
func (m *ConnectionManager) MaxConnections() int {
	return m.max
}
