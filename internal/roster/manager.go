package roster

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// maxCodeAttempts bounds the generate-until-unique loop. Collisions on an
// 8-character code are vanishingly rare; hitting the bound means the
// store, not the generator, is broken.
const maxCodeAttempts = 10

// Manager owns the server-side test roster: invite codes, invited and
// attended students, and per-student activity history.
// ARCHITECTURAL DISCOVERY: In-memory cache over the store keeps invite
// validation off the database during the join rush at exam start
type Manager struct {
	store     interfaces.TestStore
	publisher interfaces.ControlPublisher
	tests     map[string]*types.ProctoredTest // testID -> test
	byCode    map[string]string               // inviteCode -> testID
	mu        sync.RWMutex
}

// NewManager creates a new roster manager
func NewManager(store interfaces.TestStore, publisher interfaces.ControlPublisher) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		tests:     make(map[string]*types.ProctoredTest),
		byCode:    make(map[string]string),
	}
}

// LoadTests loads all tests from the store into memory
func (m *Manager) LoadTests(ctx context.Context) error {
	tests, err := m.store.ListTests(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tests: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, test := range tests {
		m.tests[test.ID] = test
		m.byCode[test.InviteCode] = test.ID
	}

	log.Printf("Loaded %d tests into roster", len(tests))
	return nil
}

// CreateTest creates a test with a freshly generated unique invite code
// FUNCTIONAL DISCOVERY: Generate-and-retry against the store rather than
// reserving codes - the unique index is the arbiter of uniqueness
func (m *Manager) CreateTest(ctx context.Context, title string, startTime time.Time, durationMinutes int) (*types.ProctoredTest, error) {
	if len(title) < 1 || len(title) > 200 {
		return nil, ErrInvalidTitle
	}
	if durationMinutes < 1 || durationMinutes > 1440 {
		return nil, ErrInvalidDuration
	}

	var code string
	for attempt := 0; ; attempt++ {
		if attempt >= maxCodeAttempts {
			return nil, ErrCodeCollision
		}
		candidate, err := newInviteCode()
		if err != nil {
			return nil, err
		}
		_, err = m.store.GetTestByInviteCode(ctx, candidate)
		if err == interfaces.ErrTestNotFound {
			code = candidate
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check invite code: %w", err)
		}
		// Collision: loop and generate another
	}

	test := &types.ProctoredTest{
		ID:              uuid.New().String(),
		Title:           title,
		InviteCode:      code,
		StartTime:       startTime,
		DurationMinutes: durationMinutes,
		InvitedEmails:   []string{},
		AttendedEmails:  []string{},
		CreatedAt:       time.Now().UTC(),
	}

	if err := m.store.CreateTest(ctx, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	m.mu.Lock()
	m.tests[test.ID] = test
	m.byCode[test.InviteCode] = test.ID
	m.mu.Unlock()

	log.Printf("Created test: id=%s title=%q code=%s", test.ID, test.Title, test.InviteCode)
	return test, nil
}

// GetTest retrieves a test by ID, cache first
func (m *Manager) GetTest(ctx context.Context, testID string) (*types.ProctoredTest, error) {
	m.mu.RLock()
	if test, exists := m.tests[testID]; exists {
		m.mu.RUnlock()
		return test, nil
	}
	m.mu.RUnlock()

	test, err := m.store.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tests[test.ID] = test
	m.byCode[test.InviteCode] = test.ID
	m.mu.Unlock()
	return test, nil
}

// ListTests returns all known tests
func (m *Manager) ListTests(ctx context.Context) ([]*types.ProctoredTest, error) {
	return m.store.ListTests(ctx)
}

// Invite unions the emails into the test's invite list
func (m *Manager) Invite(ctx context.Context, testID string, emails []string) error {
	if len(emails) == 0 {
		return ErrNoEmails
	}
	for _, email := range emails {
		if !types.IsValidEmail(email) {
			return fmt.Errorf("%w: %s", ErrInvalidEmail, email)
		}
	}

	if err := m.store.AddInvites(ctx, testID, emails); err != nil {
		return fmt.Errorf("failed to add invites: %w", err)
	}

	m.refreshCached(ctx, testID)
	log.Printf("Invited %d students to test %s", len(emails), testID)
	return nil
}

// Validate checks an (email, inviteCode) pair and returns the test ID and
// the student's display name.
// FUNCTIONAL DISCOVERY: Invalid code and not-invited are distinct errors -
// the join page tells the student which of the two inputs to fix
func (m *Manager) Validate(ctx context.Context, email, inviteCode string) (string, string, error) {
	test, err := m.testByCode(ctx, inviteCode)
	if err != nil {
		return "", "", err
	}
	if !test.Invited(email) {
		return "", "", interfaces.ErrNotInvited
	}
	return test.ID, types.DisplayName("", email), nil
}

// MarkAttended records attendance for the student. Idempotent.
func (m *Manager) MarkAttended(ctx context.Context, testID, email string) error {
	if err := m.store.MarkAttended(ctx, testID, email); err != nil {
		return fmt.Errorf("failed to mark attendance: %w", err)
	}
	m.refreshCached(ctx, testID)
	return nil
}

// LogInactivity appends one activity entry for the student.
// ARCHITECTURAL DISCOVERY: The sink tolerates interleaved out-of-order
// arrival from independent detectors; it never inspects or de-duplicates
func (m *Manager) LogInactivity(ctx context.Context, testID, email, name, message string) error {
	if _, err := m.GetTest(ctx, testID); err != nil {
		return err
	}
	if err := m.store.AppendActivity(ctx, testID, email, types.DisplayName(name, email), message); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// StudentActivity returns the activity feed for the admin console
func (m *Manager) StudentActivity(ctx context.Context, testID string) ([]*types.StudentActivity, error) {
	if _, err := m.GetTest(ctx, testID); err != nil {
		return nil, err
	}
	return m.store.ListActivity(ctx, testID)
}

// RemoveStudent purges the student and pushes forceLogout to their session
// FUNCTIONAL DISCOVERY: The purge is authoritative, the push is advisory -
// an offline student is already gone, so publish failure is only logged
func (m *Manager) RemoveStudent(ctx context.Context, testID, email string) error {
	if err := m.store.RemoveStudent(ctx, testID, email); err != nil {
		return fmt.Errorf("failed to remove student: %w", err)
	}
	m.refreshCached(ctx, testID)

	event := types.ControlEvent{
		Type:      types.ControlTypeForceLogout,
		Message:   "You have been removed from the test by the admin.",
		Timestamp: time.Now().UTC(),
	}
	if err := m.publisher.Publish(testID, email, event); err != nil {
		log.Printf("Force logout not delivered for test=%s email=%s: %v", testID, email, err)
	}

	log.Printf("Removed student from test: test=%s email=%s", testID, email)
	return nil
}

// SendWarning pushes an admin warning to the student's session. No state
// is mutated; the warning exists only on the wire.
func (m *Manager) SendWarning(ctx context.Context, testID, email, message string) error {
	if _, err := m.GetTest(ctx, testID); err != nil {
		return err
	}
	if message == "" {
		message = "You have received a warning from the admin."
	}

	event := types.ControlEvent{
		Type:      types.ControlTypeWarning,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	return m.publisher.Publish(testID, email, event)
}

// testByCode resolves an invite code, cache first
func (m *Manager) testByCode(ctx context.Context, inviteCode string) (*types.ProctoredTest, error) {
	m.mu.RLock()
	if testID, exists := m.byCode[inviteCode]; exists {
		if test, ok := m.tests[testID]; ok {
			m.mu.RUnlock()
			return test, nil
		}
	}
	m.mu.RUnlock()

	test, err := m.store.GetTestByInviteCode(ctx, inviteCode)
	if err != nil {
		if err == interfaces.ErrTestNotFound {
			return nil, interfaces.ErrInvalidInviteCode
		}
		return nil, err
	}

	m.mu.Lock()
	m.tests[test.ID] = test
	m.byCode[test.InviteCode] = test.ID
	m.mu.Unlock()
	return test, nil
}

// refreshCached re-reads one test after a mutation so cached invite and
// attendance lists stay current. A failed refresh only evicts the entry.
func (m *Manager) refreshCached(ctx context.Context, testID string) {
	test, err := m.store.GetTest(ctx, testID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if old, exists := m.tests[testID]; exists {
			delete(m.byCode, old.InviteCode)
			delete(m.tests, testID)
		}
		return
	}
	m.tests[test.ID] = test
	m.byCode[test.InviteCode] = test.ID
}

// Stats returns roster statistics for the health endpoint
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"cached_tests": len(m.tests),
	}
}
