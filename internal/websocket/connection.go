package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one student's realtime control channel.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent
// race conditions - no business logic lives in the connection wrapper
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte // FUNCTIONAL DISCOVERY: 100 buffer prevents blocking during admin bursts
	email     string      // Set after join validation
	testID    string      // Set after join validation
	tabID     string      // Tab instance claiming this session
	joined    bool        // Join validation status
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex // Protect join fields
}

// NewConnection creates a new WebSocket connection wrapper
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Start the single writer goroutine
	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop() {
	defer func() {
		for len(c.writeCh) > 0 {
			<-c.writeCh // Drain remaining messages
		}
		close(c.writeCh)
	}()

	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return // Channel closed
			}

			// FUNCTIONAL DISCOVERY: 5-second timeout balances responsiveness
			// against the flaky home networks exam sessions run over
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON serializes v and queues it on the single writer
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the connection down exactly once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
		// writeCh is closed by the writeLoop goroutine
	})
	return err
}

// SetSession records the join identity after validation
func (c *Connection) SetSession(testID, email, tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testID = testID
	c.email = email
	c.tabID = tabID
	c.joined = true
}

func (c *Connection) IsJoined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

func (c *Connection) GetEmail() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email
}

func (c *Connection) GetTestID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.testID
}

func (c *Connection) GetTabID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tabID
}
