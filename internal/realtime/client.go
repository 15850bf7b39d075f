// Package realtime connects an exam session to the server's control
// channel. The channel is server-push only: the client never sends
// application frames, it only decodes warnings and forced logouts.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"proctor/pkg/types"
)

const (
	dialTimeout  = 10 * time.Second
	readDeadline = 60 * time.Second
)

// Client holds one websocket connection keyed by (test, email, tab).
type Client struct {
	conn   *websocket.Conn
	events chan types.ControlEvent

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the server's exam channel. The returned client starts
// reading immediately; consume Events until it closes.
func Dial(ctx context.Context, serverURL, testID, email, tabID string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("test_id", testID)
	q.Set("email", email)
	q.Set("tab_id", tabID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect exam channel: %w", err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan types.ControlEvent, 16),
		closed: make(chan struct{}),
	}

	go c.readLoop()
	return c, nil
}

// Events delivers control events in arrival order. The channel closes
// when the connection drops or Close is called; a closed channel is the
// session's signal that the control link is gone.
func (c *Client) Events() <-chan types.ControlEvent {
	return c.events
}

// readLoop is the only reader. It answers server pings via the default
// pong machinery and decodes every text frame as a control event.
func (c *Client) readLoop() {
	defer func() {
		c.Close()
		close(c.events)
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPingHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Printf("Exam channel closed: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))

		var event types.ControlEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("Discarding malformed control event: %v", err)
			continue
		}
		if !event.Valid() {
			log.Printf("Discarding control event with unknown type %q", event.Type)
			continue
		}

		select {
		case c.events <- event:
		case <-c.closed:
			return
		}
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
