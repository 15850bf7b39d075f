package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"proctor/internal/face"
	"proctor/internal/roster"
	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// Roster is the slice of roster.Manager the HTTP layer needs. Kept as an
// interface so handler tests can run against a mock.
type Roster interface {
	CreateTest(ctx context.Context, title string, startTime time.Time, durationMinutes int) (*types.ProctoredTest, error)
	GetTest(ctx context.Context, testID string) (*types.ProctoredTest, error)
	ListTests(ctx context.Context) ([]*types.ProctoredTest, error)
	Invite(ctx context.Context, testID string, emails []string) error
	Validate(ctx context.Context, email, inviteCode string) (string, string, error)
	MarkAttended(ctx context.Context, testID, email string) error
	LogInactivity(ctx context.Context, testID, email, name, message string) error
	StudentActivity(ctx context.Context, testID string) ([]*types.StudentActivity, error)
	RemoveStudent(ctx context.Context, testID, email string) error
	SendWarning(ctx context.Context, testID, email, message string) error
}

// FaceGate is the face verification surface exposed over HTTP.
type FaceGate interface {
	Enroll(ctx context.Context, email string, descriptor []float64) error
	Verify(ctx context.Context, email string, descriptor []float64) (bool, error)
}

// ConnectionStats reports live websocket counts for the health endpoint.
type ConnectionStats interface {
	GetStats() map[string]int
}

// HealthChecker is implemented by the database manager.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ARCHITECTURAL DISCOVERY: HTTP layer holds no exam state of its own -
// every handler delegates to the roster or the face verifier and only
// translates between JSON and domain errors
type Server struct {
	roster  Roster
	faces   FaceGate
	db      HealthChecker
	conns   ConnectionStats
	limiter *RateLimiter
	router  *http.ServeMux
}

var (
	_ Roster   = (*roster.Manager)(nil)
	_ FaceGate = (*face.Verifier)(nil)
)

func NewServer(r Roster, faces FaceGate, db HealthChecker, conns ConnectionStats) *Server {
	s := &Server{
		roster:  r,
		faces:   faces,
		db:      db,
		conns:   conns,
		limiter: NewRateLimiter(100),
		router:  http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/tests", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleTests))))
	s.router.Handle("/api/tests/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleTestByID))))
	s.router.Handle("/api/face/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleFace))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleTests serves the collection endpoints (POST /api/tests, GET /api/tests)
func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createTest(w, r)
	case http.MethodGet:
		s.listTests(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTestByID dispatches /api/tests/{id} and its sub-resources.
// FUNCTIONAL DISCOVERY: validate-invite lives under /api/tests/ but takes
// no test ID - the invite code is the lookup key, so it is matched before
// the ID is parsed
func (s *Server) handleTestByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tests/")
	if path == "" {
		s.sendError(w, "Test ID required", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if path == "validate-invite" {
		if r.Method != http.MethodPost {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.validateInvite(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	testID := parts[0]
	if !types.IsValidTestID(testID) {
		s.sendError(w, "Invalid test ID", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTest(w, r, testID)
	case action == "mark-attended" && r.Method == http.MethodPost:
		s.markAttended(w, r, testID)
	case action == "log-inactivity" && r.Method == http.MethodPost:
		s.logInactivity(w, r, testID)
	case action == "activity" && r.Method == http.MethodGet:
		s.studentActivity(w, r, testID)
	case action == "invite" && r.Method == http.MethodPost:
		s.inviteStudents(w, r, testID)
	case action == "warn" && r.Method == http.MethodPost:
		s.warnStudent(w, r, testID)
	case action == "remove" && r.Method == http.MethodPost:
		s.removeStudent(w, r, testID)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFace(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/face/") {
	case "enroll":
		s.enrollFace(w, r)
	case "verify":
		s.verifyFace(w, r)
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

// Request/Response types for JSON serialization
type CreateTestRequest struct {
	Title           string   `json:"title"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int      `json:"duration_minutes"`
	InvitedEmails   []string `json:"invited_emails,omitempty"`
}

type TestResponse struct {
	Test *types.ProctoredTest `json:"test"`
}

type ListTestsResponse struct {
	Tests []*types.ProctoredTest `json:"tests"`
}

type ValidateInviteRequest struct {
	Email      string `json:"email"`
	InviteCode string `json:"invite_code"`
}

type ValidateInviteResponse struct {
	TestID string `json:"test_id"`
	Name   string `json:"name"`
}

type StudentRequest struct {
	Email string `json:"email"`
}

type LogInactivityRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type ActivityResponse struct {
	Activity []*types.StudentActivity `json:"activity"`
}

type InviteRequest struct {
	Emails []string `json:"emails"`
}

type WarnRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type FaceRequest struct {
	Email      string    `json:"email"`
	Descriptor []float64 `json:"descriptor"`
}

type VerifyFaceResponse struct {
	Matched bool `json:"matched"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// createTest handles POST /api/tests
func (s *Server) createTest(w http.ResponseWriter, r *http.Request) {
	var req CreateTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	test, err := s.roster.CreateTest(r.Context(), req.Title, req.StartTime, req.DurationMinutes)
	if err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}

	// FUNCTIONAL DISCOVERY: Invites supplied at creation time are a
	// convenience over a separate invite call, not a different code path
	if len(req.InvitedEmails) > 0 {
		if err := s.roster.Invite(r.Context(), test.ID, req.InvitedEmails); err != nil {
			s.sendError(w, err.Error(), statusForError(err))
			return
		}
		test, err = s.roster.GetTest(r.Context(), test.ID)
		if err != nil {
			s.sendError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(TestResponse{Test: test})
}

func (s *Server) listTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.roster.ListTests(r.Context())
	if err != nil {
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tests == nil {
		tests = []*types.ProctoredTest{}
	}
	json.NewEncoder(w).Encode(ListTestsResponse{Tests: tests})
}

func (s *Server) getTest(w http.ResponseWriter, r *http.Request, testID string) {
	test, err := s.roster.GetTest(r.Context(), testID)
	if err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	json.NewEncoder(w).Encode(TestResponse{Test: test})
}

// validateInvite resolves an (email, invite code) pair to a joinable test.
// FUNCTIONAL DISCOVERY: 404 means the code is wrong, 403 means the code is
// right but the student is not on the list - the join page shows different
// guidance for each
func (s *Server) validateInvite(w http.ResponseWriter, r *http.Request) {
	var req ValidateInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Valid email is required", http.StatusBadRequest)
		return
	}
	if !types.IsValidInviteCode(req.InviteCode) {
		s.sendError(w, "Invalid invite code", http.StatusNotFound)
		return
	}

	testID, name, err := s.roster.Validate(r.Context(), req.Email, req.InviteCode)
	if err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}

	json.NewEncoder(w).Encode(ValidateInviteResponse{TestID: testID, Name: name})
}

func (s *Server) markAttended(w http.ResponseWriter, r *http.Request, testID string) {
	var req StudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Valid email is required", http.StatusBadRequest)
		return
	}

	if err := s.roster.MarkAttended(r.Context(), testID, req.Email); err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	json.NewEncoder(w).Encode(StatusResponse{Status: "attended"})
}

// logInactivity handles POST /api/tests/{id}/log-inactivity.
// TECHNICAL DISCOVERY: Rate limited per (test, student) - a stuck client
// re-firing a detector must not flood the activity log
func (s *Server) logInactivity(w http.ResponseWriter, r *http.Request, testID string) {
	var req LogInactivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Valid email is required", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		s.sendError(w, "Message is required", http.StatusBadRequest)
		return
	}

	if !s.limiter.Allow(testID + "/" + req.Email) {
		s.sendError(w, "Too many activity reports", http.StatusTooManyRequests)
		return
	}

	if err := s.roster.LogInactivity(r.Context(), testID, req.Email, req.Name, req.Message); err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	json.NewEncoder(w).Encode(StatusResponse{Status: "logged"})
}

func (s *Server) studentActivity(w http.ResponseWriter, r *http.Request, testID string) {
	activity, err := s.roster.StudentActivity(r.Context(), testID)
	if err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	if activity == nil {
		activity = []*types.StudentActivity{}
	}
	json.NewEncoder(w).Encode(ActivityResponse{Activity: activity})
}

func (s *Server) inviteStudents(w http.ResponseWriter, r *http.Request, testID string) {
	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.roster.Invite(r.Context(), testID, req.Emails); err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	json.NewEncoder(w).Encode(StatusResponse{Status: "invited"})
}

func (s *Server) warnStudent(w http.ResponseWriter, r *http.Request, testID string) {
	var req WarnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Valid email is required", http.StatusBadRequest)
		return
	}

	if err := s.roster.SendWarning(r.Context(), testID, req.Email, req.Message); err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	json.NewEncoder(w).Encode(StatusResponse{Status: "warned"})
}

func (s *Server) removeStudent(w http.ResponseWriter, r *http.Request, testID string) {
	var req StudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Valid email is required", http.StatusBadRequest)
		return
	}

	if err := s.roster.RemoveStudent(r.Context(), testID, req.Email); err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	json.NewEncoder(w).Encode(StatusResponse{Status: "removed"})
}

func (s *Server) enrollFace(w http.ResponseWriter, r *http.Request) {
	var req FaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Valid email is required", http.StatusBadRequest)
		return
	}

	if err := s.faces.Enroll(r.Context(), req.Email, req.Descriptor); err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(StatusResponse{Status: "enrolled"})
}

// verifyFace handles POST /api/face/verify.
// FUNCTIONAL DISCOVERY: No enrolled descriptor is a 404, not a failed
// match - the student must enroll first, not retry the camera
func (s *Server) verifyFace(w http.ResponseWriter, r *http.Request) {
	var req FaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Valid email is required", http.StatusBadRequest)
		return
	}

	matched, err := s.faces.Verify(r.Context(), req.Email, req.Descriptor)
	if err != nil {
		s.sendError(w, err.Error(), statusForError(err))
		return
	}
	json.NewEncoder(w).Encode(VerifyFaceResponse{Matched: matched})
}

// healthCheck reports database and websocket status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  "connected",
	}

	if err := s.db.HealthCheck(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		response.Status = "unhealthy"
		response.Database = "disconnected"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if s.conns != nil {
		response.Connections = s.conns.GetStats()
	}

	json.NewEncoder(w).Encode(response)
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrTestNotFound),
		errors.Is(err, interfaces.ErrInvalidInviteCode),
		errors.Is(err, interfaces.ErrNoDescriptor):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrNotInvited):
		return http.StatusForbidden
	case errors.Is(err, types.ErrInvalidTitle),
		errors.Is(err, types.ErrInvalidDuration),
		errors.Is(err, types.ErrInvalidEmail),
		errors.Is(err, types.ErrInvalidDescriptor),
		errors.Is(err, roster.ErrNoEmails),
		errors.Is(err, roster.ErrInvalidEmail),
		errors.Is(err, roster.ErrInvalidTitle),
		errors.Is(err, roster.ErrInvalidDuration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows all origins. The admin console and the exam client
// are served from a different origin in development.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
