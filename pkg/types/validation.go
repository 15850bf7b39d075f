package types

import (
	"regexp"
	"strings"
)

// DescriptorLength is the fixed length of a face descriptor vector.
const DescriptorLength = 128

// InviteCodeLength is the fixed length of generated invite codes.
const InviteCodeLength = 8

// InviteCodeAlphabet excludes characters that read ambiguously in email
// clients (0/O, 1/I/L).
const InviteCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var (
	testIDRegex     = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
	inviteCodeRegex = regexp.MustCompile(`^[` + InviteCodeAlphabet + `]{8}$`)
)

// Validate ensures the test record meets all requirements.
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all components without duplicating validation logic
func (t *ProctoredTest) Validate() error {
	if len(t.Title) < 1 || len(t.Title) > 200 {
		return ErrInvalidTitle
	}
	if t.DurationMinutes < 1 || t.DurationMinutes > 1440 {
		return ErrInvalidDuration
	}
	if !IsValidInviteCode(t.InviteCode) {
		return ErrInvalidInviteCode
	}
	return nil
}

// IsValidEmail checks the minimal shape the roster relies on.
// FUNCTIONAL DISCOVERY: Full RFC 5322 validation rejects addresses that
// real mail systems deliver to - a single @ with non-empty sides is the
// contract the invite list actually needs
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

// IsValidInviteCode checks if a code could have been generated by the roster.
func IsValidInviteCode(code string) bool {
	return inviteCodeRegex.MatchString(code)
}

// IsValidTestID checks if the ID is a canonical lowercase UUID.
func IsValidTestID(testID string) bool {
	return testIDRegex.MatchString(testID)
}

// ValidateDescriptor checks a face descriptor vector.
func ValidateDescriptor(descriptor []float64) error {
	if len(descriptor) != DescriptorLength {
		return ErrInvalidDescriptor
	}
	return nil
}

// DisplayName falls back to the local part of the email when no registered
// name is known for a student.
func DisplayName(name, email string) string {
	if name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
