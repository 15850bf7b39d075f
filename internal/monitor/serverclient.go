package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// ServerClient is the HTTP client an exam session uses to reach the
// proctoring server: invite validation, attendance, the activity log sink
// and face verification.
type ServerClient struct {
	baseURL string
	http    *http.Client
}

func NewServerClient(baseURL string) *ServerClient {
	return &ServerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type validateInviteRequest struct {
	Email      string `json:"email"`
	InviteCode string `json:"invite_code"`
}

type validateInviteResponse struct {
	TestID string `json:"test_id"`
	Name   string `json:"name"`
}

type testResponse struct {
	Test *types.ProctoredTest `json:"test"`
}

type logInactivityRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type studentRequest struct {
	Email string `json:"email"`
}

type faceRequest struct {
	Email      string    `json:"email"`
	Descriptor []float64 `json:"descriptor"`
}

type verifyFaceResponse struct {
	Matched bool `json:"matched"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// ValidateInvite resolves an (email, invite code) pair to a test ID and
// display name.
func (c *ServerClient) ValidateInvite(ctx context.Context, email, inviteCode string) (string, string, error) {
	var resp validateInviteResponse
	err := c.post(ctx, "/api/tests/validate-invite",
		validateInviteRequest{Email: email, InviteCode: inviteCode}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.TestID, resp.Name, nil
}

func (c *ServerClient) GetTest(ctx context.Context, testID string) (*types.ProctoredTest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tests/"+testID, nil)
	if err != nil {
		return nil, err
	}
	var resp testResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Test, nil
}

// MarkAttended records attendance. Safe to call more than once.
func (c *ServerClient) MarkAttended(ctx context.Context, testID, email string) error {
	return c.post(ctx, "/api/tests/"+testID+"/mark-attended", studentRequest{Email: email}, nil)
}

// LogInactivity appends one entry to the student's activity log. This is
// the sink for detector events; callers treat failures as advisory.
func (c *ServerClient) LogInactivity(ctx context.Context, testID, email, name, message string) error {
	return c.post(ctx, "/api/tests/"+testID+"/log-inactivity",
		logInactivityRequest{Email: email, Name: name, Message: message}, nil)
}

// VerifyFace submits a descriptor for comparison against the student's
// enrolled descriptor.
func (c *ServerClient) VerifyFace(ctx context.Context, email string, descriptor []float64) (bool, error) {
	var resp verifyFaceResponse
	err := c.post(ctx, "/api/face/verify", faceRequest{Email: email, Descriptor: descriptor}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Matched, nil
}

func (c *ServerClient) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and maps error statuses back to the domain
// sentinels the server encoded them from.
func (c *ServerClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		json.Unmarshal(body, &apiErr)

		switch resp.StatusCode {
		case http.StatusNotFound:
			if strings.Contains(apiErr.Message, "descriptor") {
				return interfaces.ErrNoDescriptor
			}
			if strings.Contains(apiErr.Message, "code") {
				return interfaces.ErrInvalidInviteCode
			}
			return interfaces.ErrTestNotFound
		case http.StatusForbidden:
			return interfaces.ErrNotInvited
		default:
			if apiErr.Message != "" {
				return errors.New(apiErr.Message)
			}
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
