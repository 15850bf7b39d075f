package types

import (
	"time"
)

// Phase represents where a student's exam session is in its lifecycle.
// ARCHITECTURAL DISCOVERY: Explicit phase enum instead of boolean flags
// makes illegal transitions detectable at a single decision point
type Phase int

const (
	PhaseUnstarted Phase = iota
	PhaseConfirming
	PhaseActive
	PhaseSubmitting
	PhaseEnding
	PhaseTimedOut
	PhaseDuplicateBlocked
	PhaseCompleted
)

var phaseNames = map[Phase]string{
	PhaseUnstarted:        "unstarted",
	PhaseConfirming:       "confirming",
	PhaseActive:           "active",
	PhaseSubmitting:       "submitting",
	PhaseEnding:           "ending",
	PhaseTimedOut:         "timed_out",
	PhaseDuplicateBlocked: "duplicate_blocked",
	PhaseCompleted:        "completed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the session can never leave this phase.
// FUNCTIONAL DISCOVERY: TimedOut is NOT terminal - it auto-advances to
// Completed after the countdown rather than parking the session
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseDuplicateBlocked
}

// EventKind identifies the detector that produced an integrity event.
type EventKind string

const (
	EventTabSwitch      EventKind = "tab_switch"
	EventFullscreenExit EventKind = "fullscreen_exit"
	EventNoFace         EventKind = "no_face"
	EventMultipleFaces  EventKind = "multiple_faces"
	EventFaceUnclear    EventKind = "face_unclear"
	EventAudioAnomaly   EventKind = "audio_anomaly"
	EventBackNavigation EventKind = "back_navigation"
	EventDuplicateTab   EventKind = "duplicate_tab"
)

// Reportable reports whether the event is forwarded to the activity log.
// FUNCTIONAL DISCOVERY: A duplicate tab blocks the session locally instead
// of producing a log entry - the second tab is the anomaly, not the
// student's behavior inside this one
func (k EventKind) Reportable() bool {
	return k != EventDuplicateTab
}

// IntegrityEvent is a timestamped record of a suspected proctoring violation.
type IntegrityEvent struct {
	Kind       EventKind `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProctoredTest is the server-side record of one timed test instance.
// FUNCTIONAL DISCOVERY: Immutable after creation except for the invited,
// attended and activity collections, which keeps cached copies safe to
// read without re-fetching
type ProctoredTest struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	InviteCode      string    `json:"invite_code" db:"invite_code"`
	StartTime       time.Time `json:"start_time" db:"start_time"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	InvitedEmails   []string  `json:"invited_emails" db:"invited_emails"`
	AttendedEmails  []string  `json:"attended_emails" db:"attended_emails"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Duration converts the stored minute count to a time.Duration.
func (t *ProctoredTest) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// EndTime is the instant at which a session that began at startedAt runs out.
func (t *ProctoredTest) EndTime(startedAt time.Time) time.Time {
	return startedAt.Add(t.Duration())
}

// Invited reports whether the email is currently on the invite list.
func (t *ProctoredTest) Invited(email string) bool {
	for _, e := range t.InvitedEmails {
		if e == email {
			return true
		}
	}
	return false
}

// Attended reports whether attendance has been recorded for the email.
func (t *ProctoredTest) Attended(email string) bool {
	for _, e := range t.AttendedEmails {
		if e == email {
			return true
		}
	}
	return false
}

// StudentActivity groups the inactivity log entries of one student.
// Entries accumulate monotonically until explicit removal.
type StudentActivity struct {
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	InactivityLogs []string `json:"inactivity_logs"`
}

// Control event types carried over the realtime channel.
// ARCHITECTURAL DISCOVERY: Two event types only - the channel is advisory
// for warnings and authoritative for removal, nothing else travels on it
const (
	ControlTypeWarning     = "warning"
	ControlTypeForceLogout = "force_logout"
)

// ControlEvent is the wire shape of an admin intervention pushed to a
// student session.
type ControlEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the event type is one of the defined control types.
func (e *ControlEvent) Valid() bool {
	return e.Type == ControlTypeWarning || e.Type == ControlTypeForceLogout
}
