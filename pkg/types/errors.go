package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidEmail      = errors.New("email must be 3-254 characters with a single @")
	ErrInvalidTitle      = errors.New("test title must be 1-200 characters")
	ErrInvalidDuration   = errors.New("test duration must be between 1 and 1440 minutes")
	ErrInvalidInviteCode = errors.New("invite code must be 8 characters from the invite alphabet")
	ErrInvalidTestID     = errors.New("test ID must be a valid UUID string")
	ErrInvalidDescriptor = errors.New("face descriptor must contain exactly 128 values")
)
