package websocket

import (
	"log"
	"sync"
)

// Registry tracks live student sessions keyed by (testID, email).
// ARCHITECTURAL DISCOVERY: Pure connection management without business
// logic - the hub decides what to deliver, the registry only knows where
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Connection // testID -> email -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Connection),
	}
}

// RegisterConnection adds a joined connection to the registry.
// FUNCTIONAL DISCOVERY: Last writer wins - a reconnecting student (or a
// second tab that survived local duplicate detection) replaces the old
// connection, which is closed asynchronously to avoid deadlock
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsJoined() {
		return ErrConnectionNotJoined
	}

	testID := conn.GetTestID()
	email := conn.GetEmail()

	r.mu.Lock()
	defer r.mu.Unlock()

	if byEmail := r.sessions[testID]; byEmail != nil {
		if existing, exists := byEmail[email]; exists {
			go func() {
				if err := existing.Close(); err != nil {
					log.Printf("Failed to close replaced connection: %v", err)
				}
			}()
		}
	}

	if r.sessions[testID] == nil {
		r.sessions[testID] = make(map[string]*Connection)
	}
	r.sessions[testID][email] = conn

	return nil
}

// UnregisterConnection removes a specific connection.
// Idempotent, and only removes the exact instance that is registered so a
// stale connection's cleanup cannot evict its replacement.
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	testID := conn.GetTestID()
	email := conn.GetEmail()

	r.mu.Lock()
	defer r.mu.Unlock()

	byEmail, exists := r.sessions[testID]
	if !exists {
		return
	}
	registered, exists := byEmail[email]
	if !exists || registered != conn {
		return
	}

	delete(byEmail, email)
	if len(byEmail) == 0 {
		delete(r.sessions, testID)
	}
}

// GetStudentConnection looks up the live session for (testID, email)
func (r *Registry) GetStudentConnection(testID, email string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byEmail, exists := r.sessions[testID]
	if !exists {
		return nil, false
	}
	conn, exists := byEmail[email]
	return conn, exists
}

// CountForTest returns how many students are connected for the test
func (r *Registry) CountForTest(testID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[testID])
}

// GetStats returns registry statistics
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, byEmail := range r.sessions {
		total += len(byEmail)
	}
	return map[string]int{
		"tests":       len(r.sessions),
		"connections": total,
	}
}
