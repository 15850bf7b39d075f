package websocket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"proctor/pkg/types"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins for development
		// Production deployments should implement stricter origin checking
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// TestLookup is the slice of the roster the handler needs for join
// validation, kept narrow to avoid coupling to the full manager.
type TestLookup interface {
	GetTest(ctx context.Context, testID string) (*types.ProctoredTest, error)
}

// Handler upgrades student join requests into registered control channels.
// ARCHITECTURAL DISCOVERY: The join handshake is the connect request
// itself - test_id, email and tab_id arrive as query parameters and are
// validated before the upgrade spends any socket resources
type Handler struct {
	registry *Registry
	tests    TestLookup
}

// NewHandler creates a new WebSocket handler
func NewHandler(registry *Registry, tests TestLookup) *Handler {
	return &Handler{
		registry: registry,
		tests:    tests,
	}
}

// HandleJoinExam handles a student session joining its control channel
func (h *Handler) HandleJoinExam(w http.ResponseWriter, r *http.Request) {
	testID := r.URL.Query().Get("test_id")
	email := r.URL.Query().Get("email")
	tabID := r.URL.Query().Get("tab_id")

	if testID == "" || email == "" || tabID == "" {
		http.Error(w, "Missing required query parameters: test_id, email, tab_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidTestID(testID) {
		http.Error(w, "Invalid test_id format", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	// FUNCTIONAL DISCOVERY: Only invited students may hold a control
	// channel - a removed student reconnecting is rejected here
	test, err := h.tests.GetTest(r.Context(), testID)
	if err != nil {
		http.Error(w, "Test not found", http.StatusNotFound)
		return
	}
	if !test.Invited(email) {
		http.Error(w, "Not invited to this test", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	wsConn.SetSession(testID, email, tabID)

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	log.Printf("Student joined exam channel: test=%s email=%s tab=%s", testID, email, tabID)

	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
// ARCHITECTURAL DISCOVERY: One goroutine per connection handles both
// heartbeat and the read pump to prevent goroutine proliferation
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
	}()

	// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping
	// interval provides reliable health monitoring over home networks
	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// Read pump. The control channel is server-push only; anything the
	// client sends beyond pong frames is ignored.
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: test=%s email=%s: %v", conn.GetTestID(), conn.GetEmail(), err)
			}
			return
		}
	}
}
