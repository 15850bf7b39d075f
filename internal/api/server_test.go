package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// Mock roster with canned data
type mockRoster struct {
	test     *types.ProctoredTest
	activity []*types.StudentActivity

	warned  []string
	removed []string
	logged  []string
}

func newMockRoster() *mockRoster {
	return &mockRoster{
		test: &types.ProctoredTest{
			ID:              "a1b2c3d4-e5f6-4a5b-8c9d-0e1f2a3b4c5d",
			Title:           "Midterm",
			InviteCode:      "ABCD2345",
			DurationMinutes: 60,
			InvitedEmails:   []string{"invited@example.com"},
			AttendedEmails:  []string{},
		},
	}
}

func (m *mockRoster) CreateTest(ctx context.Context, title string, startTime time.Time, durationMinutes int) (*types.ProctoredTest, error) {
	if title == "" {
		return nil, types.ErrInvalidTitle
	}
	return m.test, nil
}

func (m *mockRoster) GetTest(ctx context.Context, testID string) (*types.ProctoredTest, error) {
	if testID != m.test.ID {
		return nil, interfaces.ErrTestNotFound
	}
	return m.test, nil
}

func (m *mockRoster) ListTests(ctx context.Context) ([]*types.ProctoredTest, error) {
	return []*types.ProctoredTest{m.test}, nil
}

func (m *mockRoster) Invite(ctx context.Context, testID string, emails []string) error {
	return nil
}

func (m *mockRoster) Validate(ctx context.Context, email, inviteCode string) (string, string, error) {
	if inviteCode != m.test.InviteCode {
		return "", "", interfaces.ErrInvalidInviteCode
	}
	if !m.test.Invited(email) {
		return "", "", interfaces.ErrNotInvited
	}
	return m.test.ID, types.DisplayName("", email), nil
}

func (m *mockRoster) MarkAttended(ctx context.Context, testID, email string) error {
	if testID != m.test.ID {
		return interfaces.ErrTestNotFound
	}
	return nil
}

func (m *mockRoster) LogInactivity(ctx context.Context, testID, email, name, message string) error {
	m.logged = append(m.logged, message)
	return nil
}

func (m *mockRoster) StudentActivity(ctx context.Context, testID string) ([]*types.StudentActivity, error) {
	return m.activity, nil
}

func (m *mockRoster) RemoveStudent(ctx context.Context, testID, email string) error {
	m.removed = append(m.removed, email)
	return nil
}

func (m *mockRoster) SendWarning(ctx context.Context, testID, email, message string) error {
	m.warned = append(m.warned, email)
	return nil
}

// Mock face gate
type mockFaceGate struct {
	enrolled map[string][]float64
}

func newMockFaceGate() *mockFaceGate {
	return &mockFaceGate{enrolled: make(map[string][]float64)}
}

func (m *mockFaceGate) Enroll(ctx context.Context, email string, descriptor []float64) error {
	if err := types.ValidateDescriptor(descriptor); err != nil {
		return err
	}
	m.enrolled[email] = descriptor
	return nil
}

func (m *mockFaceGate) Verify(ctx context.Context, email string, descriptor []float64) (bool, error) {
	if _, exists := m.enrolled[email]; !exists {
		return false, interfaces.ErrNoDescriptor
	}
	return true, nil
}

type mockHealth struct{ err error }

func (m *mockHealth) HealthCheck(ctx context.Context) error { return m.err }

func setupServer(t *testing.T) (*Server, *mockRoster, *mockFaceGate) {
	t.Helper()
	roster := newMockRoster()
	faces := newMockFaceGate()
	server := NewServer(roster, faces, &mockHealth{}, nil)
	return server, roster, faces
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestServer_ValidateInviteMatrix(t *testing.T) {
	server, roster, _ := setupServer(t)

	// Valid code, invited student
	w := postJSON(t, server, "/api/tests/validate-invite", ValidateInviteRequest{
		Email: "invited@example.com", InviteCode: "ABCD2345",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ValidateInviteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TestID != roster.test.ID {
		t.Errorf("Expected test ID %s, got %s", roster.test.ID, resp.TestID)
	}
	if resp.Name != "invited" {
		t.Errorf("Expected display name from local part, got %q", resp.Name)
	}

	// Unknown code is a 404
	w = postJSON(t, server, "/api/tests/validate-invite", ValidateInviteRequest{
		Email: "invited@example.com", InviteCode: "ZZZZ9999",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown code, got %d", w.Code)
	}

	// Valid code, uninvited student is a 403
	w = postJSON(t, server, "/api/tests/validate-invite", ValidateInviteRequest{
		Email: "stranger@example.com", InviteCode: "ABCD2345",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for uninvited student, got %d", w.Code)
	}

	// Malformed email is a 400
	w = postJSON(t, server, "/api/tests/validate-invite", ValidateInviteRequest{
		Email: "not-an-email", InviteCode: "ABCD2345",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad email, got %d", w.Code)
	}
}

func TestServer_GetTestNotFound(t *testing.T) {
	server, _, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tests/ffffffff-ffff-4fff-8fff-ffffffffffff", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	// Non-UUID path segments never reach the roster
	req = httptest.NewRequest(http.MethodGet, "/api/tests/not-a-uuid", nil)
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed ID, got %d", w.Code)
	}
}

func TestServer_LogInactivityRateLimited(t *testing.T) {
	server, roster, _ := setupServer(t)
	path := "/api/tests/" + roster.test.ID + "/log-inactivity"
	body := LogInactivityRequest{Email: "invited@example.com", Message: "Switched away from the exam tab"}

	for i := 0; i < 100; i++ {
		w := postJSON(t, server, path, body)
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := postJSON(t, server, path, body)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after the limit, got %d", w.Code)
	}

	// A different student is tracked separately... but must be invited to
	// the same test; the limiter keys on (test, email) regardless.
	other := LogInactivityRequest{Email: "other@example.com", Message: "Exited fullscreen mode"}
	w = postJSON(t, server, path, other)
	if w.Code != http.StatusOK {
		t.Errorf("Expected other student to be unaffected, got %d", w.Code)
	}
}

func TestServer_LogInactivityValidation(t *testing.T) {
	server, roster, _ := setupServer(t)
	path := "/api/tests/" + roster.test.ID + "/log-inactivity"

	w := postJSON(t, server, path, LogInactivityRequest{Email: "invited@example.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty message, got %d", w.Code)
	}
	w = postJSON(t, server, path, LogInactivityRequest{Email: "bad", Message: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad email, got %d", w.Code)
	}
}

func TestServer_WarnAndRemove(t *testing.T) {
	server, roster, _ := setupServer(t)

	w := postJSON(t, server, "/api/tests/"+roster.test.ID+"/warn", WarnRequest{
		Email: "invited@example.com", Message: "Eyes on your own screen",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Warn: expected 200, got %d", w.Code)
	}
	if len(roster.warned) != 1 {
		t.Errorf("Expected one warning, got %d", len(roster.warned))
	}

	w = postJSON(t, server, "/api/tests/"+roster.test.ID+"/remove", StudentRequest{
		Email: "invited@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Remove: expected 200, got %d", w.Code)
	}
	if len(roster.removed) != 1 {
		t.Errorf("Expected one removal, got %d", len(roster.removed))
	}
}

func TestServer_FaceEnrollAndVerify(t *testing.T) {
	server, _, _ := setupServer(t)
	descriptor := make([]float64, types.DescriptorLength)

	// Verify before enrollment is a 404
	w := postJSON(t, server, "/api/face/verify", FaceRequest{
		Email: "student@example.com", Descriptor: descriptor,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before enrollment, got %d", w.Code)
	}

	w = postJSON(t, server, "/api/face/enroll", FaceRequest{
		Email: "student@example.com", Descriptor: descriptor,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Enroll: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Wrong-length descriptors are rejected at enrollment
	w = postJSON(t, server, "/api/face/enroll", FaceRequest{
		Email: "student@example.com", Descriptor: make([]float64, 64),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for short descriptor, got %d", w.Code)
	}

	w = postJSON(t, server, "/api/face/verify", FaceRequest{
		Email: "student@example.com", Descriptor: descriptor,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Verify: expected 200, got %d", w.Code)
	}
	var resp VerifyFaceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Matched {
		t.Error("Expected a match")
	}
}

func TestServer_HealthReflectsDatabase(t *testing.T) {
	roster := newMockRoster()
	health := &mockHealth{}
	server := NewServer(roster, newMockFaceGate(), health, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 when healthy, got %d", w.Code)
	}

	health.err = context.DeadlineExceeded
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when unhealthy, got %d", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, roster, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/tests/"+roster.test.ID, nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	limiter := NewRateLimiter(2)

	if !limiter.Allow("k") || !limiter.Allow("k") {
		t.Fatal("Expected the first two requests to pass")
	}
	if limiter.Allow("k") {
		t.Error("Expected the third request to be limited")
	}
	if !limiter.Allow("other") {
		t.Error("Expected an unrelated key to be unaffected")
	}
}
