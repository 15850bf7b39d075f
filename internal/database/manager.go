package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "proctor/pkg/database"
	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// Manager implements interfaces.TestStore and interfaces.DescriptorStore
// over SQLite.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager creates a new database manager
func NewManager(config *dbconfig.Config) (*Manager, error) {
	// ARCHITECTURAL DISCOVERY: Connection string carries the SQLite options
	// that the single-writer pattern depends on
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer for write operations prevents blocking
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
	// contention and is what makes read-modify-write operations atomic
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after 5 seconds -
			// activity logging is best-effort and must not back up the queue
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateTest persists a new test record
func (m *Manager) CreateTest(ctx context.Context, test *types.ProctoredTest) error {
	return m.executeWrite(func(db *sql.DB) error {
		// TECHNICAL DISCOVERY: JSON serialization for email lists maintains schema flexibility
		invitedJSON, err := json.Marshal(emptyIfNil(test.InvitedEmails))
		if err != nil {
			return fmt.Errorf("failed to marshal invited emails: %w", err)
		}
		attendedJSON, err := json.Marshal(emptyIfNil(test.AttendedEmails))
		if err != nil {
			return fmt.Errorf("failed to marshal attended emails: %w", err)
		}

		query := `
			INSERT INTO tests (id, title, invite_code, start_time, duration_minutes, invited_emails, attended_emails, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			test.ID,
			test.Title,
			test.InviteCode,
			test.StartTime,
			test.DurationMinutes,
			string(invitedJSON),
			string(attendedJSON),
			test.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert test: %w", err)
		}
		return nil
	})
}

// GetTest retrieves a test by ID
func (m *Manager) GetTest(ctx context.Context, testID string) (*types.ProctoredTest, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	return m.queryTest(ctx, "WHERE id = ?", testID)
}

// GetTestByInviteCode retrieves a test by its invite code
func (m *Manager) GetTestByInviteCode(ctx context.Context, inviteCode string) (*types.ProctoredTest, error) {
	return m.queryTest(ctx, "WHERE invite_code = ?", inviteCode)
}

func (m *Manager) queryTest(ctx context.Context, where string, arg interface{}) (*types.ProctoredTest, error) {
	query := `
		SELECT id, title, invite_code, start_time, duration_minutes, invited_emails, attended_emails, created_at
		FROM tests ` + where

	row := m.db.QueryRowContext(ctx, query, arg)
	test, err := scanTest(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to query test: %w", err)
	}
	return test, nil
}

// ListTests returns all tests, newest first
func (m *Manager) ListTests(ctx context.Context) ([]*types.ProctoredTest, error) {
	query := `
		SELECT id, title, invite_code, start_time, duration_minutes, invited_emails, attended_emails, created_at
		FROM tests
		ORDER BY created_at DESC
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tests []*types.ProctoredTest
	for rows.Next() {
		test, err := scanTest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test row: %w", err)
		}
		tests = append(tests, test)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test rows: %w", err)
	}
	return tests, nil
}

// AddInvites unions emails into the invite list
// FUNCTIONAL DISCOVERY: Read-modify-write is safe here because the single
// writer goroutine is the only mutator of the tests table
func (m *Manager) AddInvites(ctx context.Context, testID string, emails []string) error {
	return m.executeWrite(func(db *sql.DB) error {
		invited, attended, err := loadEmailLists(ctx, db, testID)
		if err != nil {
			return err
		}
		_ = attended

		seen := make(map[string]bool, len(invited))
		for _, e := range invited {
			seen[e] = true
		}
		for _, e := range emails {
			if !seen[e] {
				seen[e] = true
				invited = append(invited, e)
			}
		}

		return storeEmailList(ctx, db, testID, "invited_emails", invited)
	})
}

// MarkAttended records attendance, a no-op when already recorded
func (m *Manager) MarkAttended(ctx context.Context, testID, email string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, attended, err := loadEmailLists(ctx, db, testID)
		if err != nil {
			return err
		}

		for _, e := range attended {
			if e == email {
				return nil // Idempotent: already attended
			}
		}
		attended = append(attended, email)

		return storeEmailList(ctx, db, testID, "attended_emails", attended)
	})
}

// AppendActivity appends one inactivity log entry
func (m *Manager) AppendActivity(ctx context.Context, testID, email, name, message string) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO activity_logs (test_id, email, name, message, occurred_at)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := db.ExecContext(ctx, query, testID, email, name, message, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to insert activity log: %w", err)
		}
		return nil
	})
}

// ListActivity returns per-student activity, preserving append order
func (m *Manager) ListActivity(ctx context.Context, testID string) ([]*types.StudentActivity, error) {
	// FUNCTIONAL DISCOVERY: Row id order is insertion order under the
	// single-writer pattern, which is the only ordering the sink promises
	query := `
		SELECT email, name, message
		FROM activity_logs
		WHERE test_id = ?
		ORDER BY id ASC
	`
	rows, err := m.db.QueryContext(ctx, query, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byEmail := make(map[string]*types.StudentActivity)
	var order []string
	for rows.Next() {
		var email, name, message string
		if err := rows.Scan(&email, &name, &message); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		entry, exists := byEmail[email]
		if !exists {
			entry = &types.StudentActivity{Email: email, Name: name}
			byEmail[email] = entry
			order = append(order, email)
		}
		entry.InactivityLogs = append(entry.InactivityLogs, message)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}

	activity := make([]*types.StudentActivity, 0, len(order))
	for _, email := range order {
		activity = append(activity, byEmail[email])
	}
	return activity, nil
}

// RemoveStudent purges the email from invites, attendance and activity
// ARCHITECTURAL DISCOVERY: Single transaction so a partially removed
// student can never validate the invite code again while keeping logs
func (m *Manager) RemoveStudent(ctx context.Context, testID, email string) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		var invitedJSON, attendedJSON string
		row := tx.QueryRowContext(ctx,
			"SELECT invited_emails, attended_emails FROM tests WHERE id = ?", testID)
		if err := row.Scan(&invitedJSON, &attendedJSON); err != nil {
			if err == sql.ErrNoRows {
				return interfaces.ErrTestNotFound
			}
			return fmt.Errorf("failed to load email lists: %w", err)
		}

		invited, err := removeFromJSONList(invitedJSON, email)
		if err != nil {
			return err
		}
		attended, err := removeFromJSONList(attendedJSON, email)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE tests SET invited_emails = ?, attended_emails = ? WHERE id = ?",
			invited, attended, testID); err != nil {
			return fmt.Errorf("failed to update email lists: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM activity_logs WHERE test_id = ? AND email = ?",
			testID, email); err != nil {
			return fmt.Errorf("failed to delete activity logs: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit student removal: %w", err)
		}
		return nil
	})
}

// SaveDescriptor stores or replaces a registered face descriptor
func (m *Manager) SaveDescriptor(ctx context.Context, email string, descriptor []float64) error {
	return m.executeWrite(func(db *sql.DB) error {
		descriptorJSON, err := json.Marshal(descriptor)
		if err != nil {
			return fmt.Errorf("failed to marshal descriptor: %w", err)
		}

		query := `
			INSERT INTO face_descriptors (email, descriptor, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET descriptor = excluded.descriptor, updated_at = excluded.updated_at
		`
		if _, err := db.ExecContext(ctx, query, email, string(descriptorJSON), time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to upsert descriptor: %w", err)
		}
		return nil
	})
}

// GetDescriptor returns the registered descriptor for the email
func (m *Manager) GetDescriptor(ctx context.Context, email string) ([]float64, error) {
	var descriptorJSON string
	row := m.db.QueryRowContext(ctx,
		"SELECT descriptor FROM face_descriptors WHERE email = ?", email)
	if err := row.Scan(&descriptorJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNoDescriptor
		}
		return nil, fmt.Errorf("failed to query descriptor: %w", err)
	}

	var descriptor []float64
	if err := json.Unmarshal([]byte(descriptorJSON), &descriptor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal descriptor: %w", err)
	}
	return descriptor, nil
}

// HealthCheck verifies database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Test read operation to verify database is accessible
	if _, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM tests LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	// TECHNICAL DISCOVERY: Prevent multiple close operations
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.closed = true
	m.mu.Unlock()

	// Signal shutdown to writeLoop and wait for it to drain
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// scanTest reads one test row through any Scan-compatible source
func scanTest(scan func(dest ...interface{}) error) (*types.ProctoredTest, error) {
	var test types.ProctoredTest
	var invitedJSON, attendedJSON string

	err := scan(
		&test.ID,
		&test.Title,
		&test.InviteCode,
		&test.StartTime,
		&test.DurationMinutes,
		&invitedJSON,
		&attendedJSON,
		&test.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(invitedJSON), &test.InvitedEmails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invited emails: %w", err)
	}
	if err := json.Unmarshal([]byte(attendedJSON), &test.AttendedEmails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attended emails: %w", err)
	}
	return &test, nil
}

func loadEmailLists(ctx context.Context, db *sql.DB, testID string) (invited, attended []string, err error) {
	var invitedJSON, attendedJSON string
	row := db.QueryRowContext(ctx,
		"SELECT invited_emails, attended_emails FROM tests WHERE id = ?", testID)
	if err := row.Scan(&invitedJSON, &attendedJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, interfaces.ErrTestNotFound
		}
		return nil, nil, fmt.Errorf("failed to load email lists: %w", err)
	}
	if err := json.Unmarshal([]byte(invitedJSON), &invited); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal invited emails: %w", err)
	}
	if err := json.Unmarshal([]byte(attendedJSON), &attended); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal attended emails: %w", err)
	}
	return invited, attended, nil
}

func storeEmailList(ctx context.Context, db *sql.DB, testID, column string, emails []string) error {
	emailsJSON, err := json.Marshal(emptyIfNil(emails))
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", column, err)
	}
	// column is one of two compile-time constants, never user input
	query := fmt.Sprintf("UPDATE tests SET %s = ? WHERE id = ?", column)
	if _, err := db.ExecContext(ctx, query, string(emailsJSON), testID); err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

func removeFromJSONList(listJSON, email string) (string, error) {
	var emails []string
	if err := json.Unmarshal([]byte(listJSON), &emails); err != nil {
		return "", fmt.Errorf("failed to unmarshal email list: %w", err)
	}
	filtered := emails[:0]
	for _, e := range emails {
		if e != email {
			filtered = append(filtered, e)
		}
	}
	out, err := json.Marshal(emptyIfNil(filtered))
	if err != nil {
		return "", fmt.Errorf("failed to marshal email list: %w", err)
	}
	return string(out), nil
}

func emptyIfNil(emails []string) []string {
	if emails == nil {
		return []string{}
	}
	return emails
}
