package interfaces

import (
	"context"

	"proctor/pkg/types"
)

// TestStore handles all persistence for proctored tests and their activity.
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent transaction handling and connection management
type TestStore interface {
	// CreateTest persists a new test. The invite code must already be
	// unique; the store enforces it with a unique index as a backstop.
	CreateTest(ctx context.Context, test *types.ProctoredTest) error

	// GetTest retrieves a test by ID.
	GetTest(ctx context.Context, testID string) (*types.ProctoredTest, error)

	// GetTestByInviteCode retrieves a test by its invite code.
	GetTestByInviteCode(ctx context.Context, inviteCode string) (*types.ProctoredTest, error)

	// ListTests returns all tests ordered by creation time, newest first.
	ListTests(ctx context.Context) ([]*types.ProctoredTest, error)

	// AddInvites unions the emails into the test's invite list.
	AddInvites(ctx context.Context, testID string, emails []string) error

	// MarkAttended records attendance for the email. Idempotent: marking
	// an already-attended email is a no-op, not an error.
	MarkAttended(ctx context.Context, testID, email string) error

	// AppendActivity appends one inactivity log entry for the student.
	// FUNCTIONAL DISCOVERY: Append-only rows preserve call order, which is
	// the only ordering guarantee the sink offers across detectors
	AppendActivity(ctx context.Context, testID, email, name, message string) error

	// ListActivity returns per-student activity for the test, one entry
	// per student who has triggered at least one event.
	ListActivity(ctx context.Context, testID string) ([]*types.StudentActivity, error)

	// RemoveStudent purges the email from the invite list, the attendance
	// list and the activity records in a single transaction.
	RemoveStudent(ctx context.Context, testID, email string) error

	// HealthCheck verifies database connectivity and basic operations.
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources.
	Close() error
}

// DescriptorStore persists registered face descriptors keyed by email.
type DescriptorStore interface {
	// SaveDescriptor stores or replaces the reference descriptor.
	SaveDescriptor(ctx context.Context, email string, descriptor []float64) error

	// GetDescriptor returns the reference descriptor for the email, or
	// ErrNoDescriptor when the student has never enrolled.
	GetDescriptor(ctx context.Context, email string) ([]float64, error)
}
