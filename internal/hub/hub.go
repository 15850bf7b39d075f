package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"proctor/internal/websocket"
	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// delivery is one control event addressed to a live student session
type delivery struct {
	conn  *websocket.Connection
	event types.ControlEvent
}

// Hub is the admin-intervention push channel.
// ARCHITECTURAL DISCOVERY: Central coordination point for all admin pushes
// keeps delivery on a single goroutine so roster callers never block on a
// slow student connection
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channels prevent blocking when an
	// admin sweeps warnings across a whole cohort at once
	publishChannel  chan delivery
	shutdownChannel chan struct{} // Unbuffered for immediate shutdown signaling

	registry *websocket.Registry

	running bool
	mu      sync.RWMutex
}

// Compile-time check: the hub is the roster's ControlPublisher.
var _ interfaces.ControlPublisher = (*Hub)(nil)

// NewHub creates a new control hub
func NewHub(registry *websocket.Registry) *Hub {
	return &Hub{
		publishChannel:  make(chan delivery, 100),
		shutdownChannel: make(chan struct{}),
		registry:        registry,
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting control hub...")

	// ARCHITECTURAL DISCOVERY: Single goroutine delivery prevents races
	go h.run(ctx)

	return nil
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping control hub...")

	// TECHNICAL DISCOVERY: Safe channel close using select to prevent panic
	select {
	case <-h.shutdownChannel:
		// Channel already closed
	default:
		close(h.shutdownChannel)
	}

	return nil
}

// Publish queues a control event for the student session keyed by
// (testID, email). Implements interfaces.ControlPublisher.
// FUNCTIONAL DISCOVERY: The registry lookup happens at publish time so
// callers learn synchronously whether the student was online; delivery
// itself stays asynchronous
func (h *Hub) Publish(testID, email string, event types.ControlEvent) error {
	if !event.Valid() {
		return ErrInvalidControlEvent
	}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	conn, exists := h.registry.GetStudentConnection(testID, email)
	if !exists {
		return interfaces.ErrStudentNotConnected
	}

	select {
	case h.publishChannel <- delivery{conn: conn, event: event}:
		return nil
	default:
		return ErrPublishChannelFull
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer log.Println("Control hub processing stopped")

	for {
		select {
		case d := <-h.publishChannel:
			h.deliver(d)

		case <-h.shutdownChannel:
			log.Println("Control hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Control hub context cancelled")
			return
		}
	}
}

// deliver writes one control event to the student connection
func (h *Hub) deliver(d delivery) {
	if err := d.conn.WriteJSON(d.event); err != nil {
		log.Printf("Control event delivery failed: type=%s test=%s email=%s: %v",
			d.event.Type, d.conn.GetTestID(), d.conn.GetEmail(), err)
		return
	}

	log.Printf("Control event delivered: type=%s test=%s email=%s",
		d.event.Type, d.conn.GetTestID(), d.conn.GetEmail())

	// FUNCTIONAL DISCOVERY: A removed student's channel is closed after
	// the force_logout drains so a dead session cannot keep listening.
	// The delay gives the single-writer goroutine time to flush.
	if d.event.Type == types.ControlTypeForceLogout {
		conn := d.conn
		go func() {
			time.Sleep(time.Second)
			if err := conn.Close(); err != nil {
				log.Printf("Failed to close connection after force logout: %v", err)
			}
		}()
	}
}
