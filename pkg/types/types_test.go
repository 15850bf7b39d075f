package types

import (
	"testing"
	"time"
)

func TestPhase_Terminal(t *testing.T) {
	terminal := map[Phase]bool{
		PhaseUnstarted:        false,
		PhaseConfirming:       false,
		PhaseActive:           false,
		PhaseSubmitting:       false,
		PhaseEnding:           false,
		PhaseTimedOut:         false,
		PhaseDuplicateBlocked: true,
		PhaseCompleted:        true,
	}

	for phase, want := range terminal {
		if got := phase.Terminal(); got != want {
			t.Errorf("Phase %s: Terminal() = %v, want %v", phase, got, want)
		}
	}
}

func TestPhase_String(t *testing.T) {
	if PhaseTimedOut.String() != "timed_out" {
		t.Errorf("Expected timed_out, got %s", PhaseTimedOut.String())
	}
	if Phase(99).String() != "unknown" {
		t.Errorf("Expected unknown for invalid phase, got %s", Phase(99).String())
	}
}

func TestEventKind_Reportable(t *testing.T) {
	reportable := []EventKind{
		EventTabSwitch, EventFullscreenExit, EventNoFace,
		EventMultipleFaces, EventFaceUnclear, EventAudioAnomaly,
		EventBackNavigation,
	}
	for _, kind := range reportable {
		if !kind.Reportable() {
			t.Errorf("Expected %s to be reportable", kind)
		}
	}

	if EventDuplicateTab.Reportable() {
		t.Error("Duplicate tab events must never reach the activity log")
	}
}

func TestProctoredTest_EndTime(t *testing.T) {
	test := &ProctoredTest{DurationMinutes: 90}
	startedAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	want := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)
	if got := test.EndTime(startedAt); !got.Equal(want) {
		t.Errorf("EndTime = %v, want %v", got, want)
	}
}

func TestProctoredTest_InvitedAttended(t *testing.T) {
	test := &ProctoredTest{
		InvitedEmails:  []string{"a@example.com", "b@example.com"},
		AttendedEmails: []string{"a@example.com"},
	}

	if !test.Invited("a@example.com") {
		t.Error("Expected a@example.com to be invited")
	}
	if test.Invited("c@example.com") {
		t.Error("Expected c@example.com to not be invited")
	}
	if !test.Attended("a@example.com") {
		t.Error("Expected a@example.com to have attended")
	}
	if test.Attended("b@example.com") {
		t.Error("Expected b@example.com to not have attended")
	}
}

func TestControlEvent_Valid(t *testing.T) {
	for _, eventType := range []string{ControlTypeWarning, ControlTypeForceLogout} {
		event := &ControlEvent{Type: eventType}
		if !event.Valid() {
			t.Errorf("Expected %s to be valid", eventType)
		}
	}

	invalid := &ControlEvent{Type: "reboot"}
	if invalid.Valid() {
		t.Error("Unknown control types must be rejected")
	}
}
