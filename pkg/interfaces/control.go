package interfaces

import (
	"proctor/pkg/types"
)

// ControlPublisher delivers admin control events to a connected student
// session addressed by (testID, email).
// ARCHITECTURAL DISCOVERY: The push channel is modeled as an explicit
// publisher keyed by session rather than a process-wide socket singleton,
// so the roster never touches connection state directly
type ControlPublisher interface {
	// Publish sends the event to the student's live session. Returns
	// ErrStudentNotConnected when no session is registered for the key;
	// callers decide whether that is fatal (removal is not - the purge
	// already happened, the student simply was not online to be told).
	Publish(testID, email string, event types.ControlEvent) error
}
