package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrTestNotFound        = errors.New("test not found")
	ErrInvalidInviteCode   = errors.New("invalid invite code")
	ErrNotInvited          = errors.New("email is not invited to this test")
	ErrStudentNotConnected = errors.New("student session not connected")
	ErrNoDescriptor        = errors.New("no registered face descriptor for email")
)
