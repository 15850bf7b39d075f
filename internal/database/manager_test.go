package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	dbconfig "proctor/pkg/database"
	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// setupTestDB creates a manager over a throwaway SQLite file with the
// schema applied inline so tests never depend on migration files.
func setupTestDB(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "proctor_test.db")

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create database manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	schema := `
		CREATE TABLE tests (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			invite_code TEXT NOT NULL UNIQUE,
			start_time DATETIME NOT NULL,
			duration_minutes INTEGER NOT NULL,
			invited_emails TEXT NOT NULL DEFAULT '[]',
			attended_emails TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		);
		CREATE TABLE activity_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_id TEXT NOT NULL,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			message TEXT NOT NULL,
			occurred_at DATETIME NOT NULL
		);
		CREATE TABLE face_descriptors (
			email TEXT PRIMARY KEY,
			descriptor TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	if _, err := manager.GetDB().Exec(schema); err != nil {
		t.Fatalf("Failed to apply test schema: %v", err)
	}

	return manager
}

func sampleTest(invited ...string) *types.ProctoredTest {
	return &types.ProctoredTest{
		ID:              uuid.New().String(),
		Title:           "Algorithms Midterm",
		InviteCode:      uuid.New().String()[:8],
		StartTime:       time.Now().UTC().Truncate(time.Second),
		DurationMinutes: 90,
		InvitedEmails:   invited,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

func TestManager_CreateAndGetTest(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	test := sampleTest("a@example.com", "b@example.com")
	if err := manager.CreateTest(ctx, test); err != nil {
		t.Fatalf("CreateTest failed: %v", err)
	}

	got, err := manager.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("GetTest failed: %v", err)
	}
	if got.Title != test.Title || got.InviteCode != test.InviteCode {
		t.Errorf("Round-tripped test mismatch: %+v", got)
	}
	if len(got.InvitedEmails) != 2 {
		t.Errorf("Expected 2 invited emails, got %v", got.InvitedEmails)
	}
	if got.AttendedEmails == nil || len(got.AttendedEmails) != 0 {
		t.Errorf("Expected empty attended list, got %v", got.AttendedEmails)
	}

	byCode, err := manager.GetTestByInviteCode(ctx, test.InviteCode)
	if err != nil {
		t.Fatalf("GetTestByInviteCode failed: %v", err)
	}
	if byCode.ID != test.ID {
		t.Errorf("Expected test %s by code, got %s", test.ID, byCode.ID)
	}
}

func TestManager_GetTestNotFound(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if _, err := manager.GetTest(ctx, uuid.New().String()); !errors.Is(err, interfaces.ErrTestNotFound) {
		t.Errorf("Expected ErrTestNotFound, got %v", err)
	}
	if _, err := manager.GetTestByInviteCode(ctx, "nope"); !errors.Is(err, interfaces.ErrTestNotFound) {
		t.Errorf("Expected ErrTestNotFound by code, got %v", err)
	}
}

func TestManager_AddInvitesUnions(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	test := sampleTest("a@example.com")
	if err := manager.CreateTest(ctx, test); err != nil {
		t.Fatal(err)
	}

	if err := manager.AddInvites(ctx, test.ID, []string{"a@example.com", "b@example.com"}); err != nil {
		t.Fatalf("AddInvites failed: %v", err)
	}

	got, err := manager.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.InvitedEmails) != 2 {
		t.Errorf("Expected invite union of 2, got %v", got.InvitedEmails)
	}
}

func TestManager_MarkAttendedIdempotent(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	test := sampleTest("a@example.com")
	if err := manager.CreateTest(ctx, test); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := manager.MarkAttended(ctx, test.ID, "a@example.com"); err != nil {
			t.Fatalf("MarkAttended attempt %d failed: %v", i, err)
		}
	}

	got, err := manager.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.AttendedEmails) != 1 {
		t.Errorf("Expected single attendance entry, got %v", got.AttendedEmails)
	}

	if err := manager.MarkAttended(ctx, uuid.New().String(), "a@example.com"); !errors.Is(err, interfaces.ErrTestNotFound) {
		t.Errorf("Expected ErrTestNotFound for unknown test, got %v", err)
	}
}

func TestManager_ActivityPreservesAppendOrder(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	test := sampleTest("a@example.com", "b@example.com")
	if err := manager.CreateTest(ctx, test); err != nil {
		t.Fatal(err)
	}

	entries := []struct{ email, message string }{
		{"a@example.com", "Switched away from the exam tab"},
		{"b@example.com", "Exited fullscreen mode"},
		{"a@example.com", "No face visible on camera"},
	}
	for _, e := range entries {
		if err := manager.AppendActivity(ctx, test.ID, e.email, "Student", e.message); err != nil {
			t.Fatalf("AppendActivity failed: %v", err)
		}
	}

	activity, err := manager.ListActivity(ctx, test.ID)
	if err != nil {
		t.Fatalf("ListActivity failed: %v", err)
	}
	if len(activity) != 2 {
		t.Fatalf("Expected 2 students with activity, got %d", len(activity))
	}
	if activity[0].Email != "a@example.com" {
		t.Errorf("Expected first-seen student first, got %s", activity[0].Email)
	}
	logs := activity[0].InactivityLogs
	if len(logs) != 2 || logs[0] != entries[0].message || logs[1] != entries[2].message {
		t.Errorf("Expected append-ordered logs, got %v", logs)
	}
}

func TestManager_RemoveStudentPurgesEverything(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	test := sampleTest("a@example.com", "b@example.com")
	if err := manager.CreateTest(ctx, test); err != nil {
		t.Fatal(err)
	}
	if err := manager.MarkAttended(ctx, test.ID, "a@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := manager.AppendActivity(ctx, test.ID, "a@example.com", "Student", "Switched away from the exam tab"); err != nil {
		t.Fatal(err)
	}

	if err := manager.RemoveStudent(ctx, test.ID, "a@example.com"); err != nil {
		t.Fatalf("RemoveStudent failed: %v", err)
	}

	got, err := manager.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range got.InvitedEmails {
		if e == "a@example.com" {
			t.Error("Removed student still invited")
		}
	}
	if len(got.AttendedEmails) != 0 {
		t.Errorf("Expected attendance purged, got %v", got.AttendedEmails)
	}

	activity, err := manager.ListActivity(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(activity) != 0 {
		t.Errorf("Expected activity purged, got %v", activity)
	}

	if err := manager.RemoveStudent(ctx, uuid.New().String(), "a@example.com"); !errors.Is(err, interfaces.ErrTestNotFound) {
		t.Errorf("Expected ErrTestNotFound, got %v", err)
	}
}

func TestManager_DescriptorUpsert(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if _, err := manager.GetDescriptor(ctx, "a@example.com"); !errors.Is(err, interfaces.ErrNoDescriptor) {
		t.Errorf("Expected ErrNoDescriptor, got %v", err)
	}

	first := []float64{0.1, 0.2, 0.3}
	if err := manager.SaveDescriptor(ctx, "a@example.com", first); err != nil {
		t.Fatalf("SaveDescriptor failed: %v", err)
	}

	replacement := []float64{0.9, 0.8, 0.7}
	if err := manager.SaveDescriptor(ctx, "a@example.com", replacement); err != nil {
		t.Fatalf("Descriptor replacement failed: %v", err)
	}

	got, err := manager.GetDescriptor(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetDescriptor failed: %v", err)
	}
	if len(got) != 3 || got[0] != 0.9 {
		t.Errorf("Expected replacement descriptor, got %v", got)
	}
}

func TestManager_ListTestsNewestFirst(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	older := sampleTest()
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := sampleTest()

	if err := manager.CreateTest(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := manager.CreateTest(ctx, newer); err != nil {
		t.Fatal(err)
	}

	tests, err := manager.ListTests(ctx)
	if err != nil {
		t.Fatalf("ListTests failed: %v", err)
	}
	if len(tests) != 2 || tests[0].ID != newer.ID {
		t.Errorf("Expected newest test first, got %v", tests)
	}
}

func TestManager_HealthCheckAndClose(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if err := manager.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed on live manager: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	if err := manager.HealthCheck(ctx); err == nil {
		t.Error("Expected HealthCheck to fail after close")
	}
}
