package roster

import "errors"

// Roster-specific error types
var (
	ErrInvalidTitle      = errors.New("test title must be 1-200 characters")
	ErrInvalidDuration   = errors.New("test duration must be between 1 and 1440 minutes")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrNoEmails          = errors.New("email list cannot be empty")
	ErrCodeCollision     = errors.New("could not generate a unique invite code")
	ErrNotAttending      = errors.New("student has not joined this test")
)
