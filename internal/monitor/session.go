// Package monitor implements the client-side exam session: the phase
// state machine, the verification gate, the timers and the HTTP client
// that ties a running session back to the proctoring server.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"proctor/internal/localstate"
	"proctor/internal/monitor/detectors"
	"proctor/pkg/types"
)

// Permissions acquires the capabilities an exam requires before it can
// start. Both requests must succeed; failure keeps the session in
// Confirming and is retryable.
type Permissions interface {
	RequestMicrophone() error
	RequestFullscreen() error
}

// MediaReleaser gives camera and microphone back when the session ends.
type MediaReleaser interface {
	Release()
}

// AttendanceMarker records that the student attempted the exam.
type AttendanceMarker interface {
	MarkAttended(ctx context.Context, testID, email string) error
}

// ActivitySink receives detector events as inactivity log entries.
type ActivitySink interface {
	LogInactivity(ctx context.Context, testID, email, name, message string) error
}

type commandKind int

const (
	cmdMarkVerified commandKind = iota
	cmdBeginExam
	cmdSubmit
	cmdEnd
	cmdConfirm
	cmdCancel
)

type command struct {
	kind  commandKind
	reply chan error
}

// SessionConfig carries everything a session needs. Store, Marker, Sink
// and Permissions are required; Media and Control are optional.
type SessionConfig struct {
	TestID   string
	Email    string
	Name     string
	TabID    string
	Duration time.Duration

	Store       localstate.Store
	Marker      AttendanceMarker
	Sink        ActivitySink
	Permissions Permissions
	Media       MediaReleaser

	Scheduler *detectors.Scheduler
	Timers    *Timers

	// Control is the realtime channel from the server. A closed channel
	// means the advisory link dropped, not that the session should end.
	Control <-chan types.ControlEvent

	AutoSubmitTicks int
	Now             func() time.Time
}

// Session is the state machine of one student's exam attempt.
// ARCHITECTURAL DISCOVERY: One event-loop goroutine owns the phase.
// Commands, detector events, timer signals and admin interventions all
// arrive on channels, so no transition ever races another
type Session struct {
	cfg SessionConfig

	mu    sync.RWMutex
	phase types.Phase

	commands chan command

	loopCtx    context.Context
	loopCancel context.CancelFunc

	startedDetectors bool
	startedAt        time.Time

	completeOnce sync.Once
	doneOnce     sync.Once
	done         chan struct{}

	runOnce sync.Once
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil || cfg.Marker == nil || cfg.Sink == nil || cfg.Permissions == nil {
		return nil, fmt.Errorf("store, marker, sink and permissions are required")
	}
	if cfg.Scheduler == nil || cfg.Timers == nil {
		return nil, fmt.Errorf("scheduler and timers are required")
	}
	if cfg.Duration <= 0 {
		return nil, types.ErrInvalidDuration
	}
	if cfg.AutoSubmitTicks <= 0 {
		cfg.AutoSubmitTicks = DefaultAutoSubmitTicks
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Session{
		cfg:      cfg,
		phase:    types.PhaseUnstarted,
		commands: make(chan command),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the event loop. The initial phase is Confirming when a
// persisted verified flag exists, Unstarted otherwise.
func (s *Session) Start(ctx context.Context) error {
	var startErr error
	started := false
	s.runOnce.Do(func() {
		started = true

		if _, verified, err := s.readVerified(); err != nil {
			startErr = err
			return
		} else if verified {
			s.setPhase(types.PhaseConfirming)
		}

		s.loopCtx, s.loopCancel = context.WithCancel(ctx)
		go s.run()
	})
	if !started {
		return ErrSessionRunning
	}
	return startErr
}

func (s *Session) readVerified() (string, bool, error) {
	return s.cfg.Store.Get(localstate.VerifiedKey(s.cfg.TestID))
}

// Phase returns the current phase. Reads are safe from any goroutine.
func (s *Session) Phase() types.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) setPhase(p types.Phase) {
	s.mu.Lock()
	old := s.phase
	s.phase = p
	s.mu.Unlock()
	if old != p {
		log.Printf("Session phase: %s -> %s (test=%s email=%s)", old, p, s.cfg.TestID, s.cfg.Email)
	}
}

// Done closes when the session reaches a terminal phase.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// MarkVerified advances Unstarted to Confirming after the gate passes.
func (s *Session) MarkVerified() error { return s.do(cmdMarkVerified) }

// BeginExam requests microphone and fullscreen and, when both succeed,
// starts the clock and the detectors. Retryable on failure.
func (s *Session) BeginExam() error { return s.do(cmdBeginExam) }

// Submit enters the submit confirmation sub-state.
func (s *Session) Submit() error { return s.do(cmdSubmit) }

// End enters the end-test confirmation sub-state.
func (s *Session) End() error { return s.do(cmdEnd) }

// Confirm finalizes a pending Submit or End.
func (s *Session) Confirm() error { return s.do(cmdConfirm) }

// Cancel abandons a pending Submit or End and resumes the exam.
func (s *Session) Cancel() error { return s.do(cmdCancel) }

func (s *Session) do(kind commandKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case s.commands <- cmd:
		select {
		case err := <-cmd.reply:
			return err
		case <-s.done:
			// The loop may have replied and shut down in the same breath.
			select {
			case err := <-cmd.reply:
				return err
			default:
				return ErrSessionTerminal
			}
		}
	case <-s.done:
		return ErrSessionTerminal
	}
}

// run is the single event loop. It is the only writer of phase and the
// only caller of the completion routine.
func (s *Session) run() {
	expired := s.cfg.Timers.Expired()
	autoSubmit := s.cfg.Timers.AutoSubmitFired()
	control := s.cfg.Control

	for {
		select {
		case <-s.loopCtx.Done():
			s.shutdownRuntime()
			s.closeDone()
			return

		case cmd := <-s.commands:
			cmd.reply <- s.handleCommand(cmd.kind)

		case event := <-s.cfg.Scheduler.Events():
			s.handleDetectorEvent(event)

		case <-expired:
			expired = nil
			s.handleExpiry()

		case <-autoSubmit:
			autoSubmit = nil
			s.complete("time expired")

		case event, ok := <-control:
			if !ok {
				// FUNCTIONAL DISCOVERY: Losing the control link is not a
				// phase change - the channel is advisory and the exam
				// continues without it
				log.Printf("Control channel lost for test=%s email=%s", s.cfg.TestID, s.cfg.Email)
				control = nil
				continue
			}
			s.handleControlEvent(event)
		}

		if s.Phase().Terminal() {
			return
		}
	}
}

func (s *Session) handleCommand(kind commandKind) error {
	phase := s.Phase()
	if phase.Terminal() {
		return ErrSessionTerminal
	}

	switch kind {
	case cmdMarkVerified:
		if phase != types.PhaseUnstarted {
			return ErrWrongPhase
		}
		if _, verified, err := s.readVerified(); err != nil {
			return err
		} else if !verified {
			return ErrNotVerified
		}
		s.setPhase(types.PhaseConfirming)
		return nil

	case cmdBeginExam:
		if phase != types.PhaseConfirming {
			return ErrWrongPhase
		}
		return s.beginExam()

	case cmdSubmit:
		if phase != types.PhaseActive {
			return ErrWrongPhase
		}
		s.setPhase(types.PhaseSubmitting)
		return nil

	case cmdEnd:
		if phase != types.PhaseActive {
			return ErrWrongPhase
		}
		s.setPhase(types.PhaseEnding)
		return nil

	case cmdConfirm:
		if phase != types.PhaseSubmitting && phase != types.PhaseEnding {
			return ErrWrongPhase
		}
		s.complete("submitted")
		return nil

	case cmdCancel:
		if phase != types.PhaseSubmitting && phase != types.PhaseEnding {
			return ErrWrongPhase
		}
		s.setPhase(types.PhaseActive)
		return nil
	}

	return ErrWrongPhase
}

// beginExam acquires permissions, fixes the start instant and brings the
// runtime up. Any failure leaves the session in Confirming.
func (s *Session) beginExam() error {
	if err := s.cfg.Permissions.RequestMicrophone(); err != nil {
		return fmt.Errorf("%w: microphone: %v", ErrPermissionDenied, err)
	}
	if err := s.cfg.Permissions.RequestFullscreen(); err != nil {
		return fmt.Errorf("%w: fullscreen: %v", ErrPermissionDenied, err)
	}

	startedAt, err := s.loadOrRecordStart()
	if err != nil {
		return err
	}
	s.startedAt = startedAt

	s.cfg.Timers.StartExamCountdown(startedAt, s.cfg.Duration)
	if err := s.cfg.Scheduler.Start(s.loopCtx); err != nil {
		return fmt.Errorf("failed to start detectors: %w", err)
	}
	s.startedDetectors = true

	s.setPhase(types.PhaseActive)
	return nil
}

// loadOrRecordStart reuses a persisted start instant so a reload resumes
// the original clock instead of granting a fresh one.
func (s *Session) loadOrRecordStart() (time.Time, error) {
	key := localstate.StartKey(s.cfg.TestID)

	value, ok, err := s.cfg.Store.Get(key)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		startedAt, parseErr := time.Parse(time.RFC3339, value)
		if parseErr == nil {
			return startedAt, nil
		}
		log.Printf("Discarding unparseable start instant %q: %v", value, parseErr)
	}

	startedAt := s.cfg.Now().UTC()
	if err := s.cfg.Store.Set(key, startedAt.Format(time.RFC3339)); err != nil {
		return time.Time{}, fmt.Errorf("failed to persist start instant: %w", err)
	}
	return startedAt, nil
}

func (s *Session) handleDetectorEvent(event types.IntegrityEvent) {
	if s.Phase().Terminal() {
		return
	}

	switch event.Kind {
	case types.EventDuplicateTab:
		// Terminal without submission: the other tab owns the exam now.
		s.setPhase(types.PhaseDuplicateBlocked)
		s.shutdownRuntime()
		s.closeDone()
		return

	case types.EventBackNavigation:
		s.report(event)
		s.complete("navigated away")
		return

	default:
		s.report(event)
	}
}

// report forwards one event to the activity log sink. Best effort: the
// request runs off the loop and a failure is only logged.
func (s *Session) report(event types.IntegrityEvent) {
	if !event.Kind.Reportable() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.cfg.Sink.LogInactivity(ctx, s.cfg.TestID, s.cfg.Email, s.cfg.Name, event.Message); err != nil {
			log.Printf("Failed to report %s event: %v", event.Kind, err)
		}
	}()
}

func (s *Session) handleExpiry() {
	switch s.Phase() {
	case types.PhaseActive, types.PhaseSubmitting, types.PhaseEnding:
		s.setPhase(types.PhaseTimedOut)
		s.cfg.Timers.StartAutoSubmit(s.cfg.AutoSubmitTicks)
	}
}

func (s *Session) handleControlEvent(event types.ControlEvent) {
	if s.Phase().Terminal() {
		return
	}

	switch event.Type {
	case types.ControlTypeWarning:
		log.Printf("Admin warning received: %s", event.Message)
	case types.ControlTypeForceLogout:
		// A forced logout during the timeout countdown simply reaches the
		// completion routine first; both paths converge on the same Once.
		s.complete("removed by admin")
	}
}

// complete is the single completion path for manual submission, timeout,
// back-navigation and forced logout. Runs at most once.
func (s *Session) complete(reason string) {
	s.completeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// FUNCTIONAL DISCOVERY: Attendance failure is swallowed - whether
		// the student attempted the exam matters more than perfect
		// delivery, and blocking completion on the network would strand
		// the session
		if err := s.cfg.Marker.MarkAttended(ctx, s.cfg.TestID, s.cfg.Email); err != nil {
			log.Printf("Failed to mark attendance: %v", err)
		}

		s.clearPersistedState()
		s.shutdownRuntime()

		s.setPhase(types.PhaseCompleted)
		log.Printf("Session completed (%s): test=%s email=%s", reason, s.cfg.TestID, s.cfg.Email)
		s.closeDone()
	})
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) clearPersistedState() {
	for _, key := range []string{
		localstate.VerifiedKey(s.cfg.TestID),
		localstate.StartKey(s.cfg.TestID),
		localstate.TabKey(s.cfg.TestID),
	} {
		if err := s.cfg.Store.Delete(key); err != nil {
			log.Printf("Failed to clear %s: %v", key, err)
		}
	}
}

// shutdownRuntime stops detectors and timers deterministically and gives
// the media devices back.
func (s *Session) shutdownRuntime() {
	if s.loopCancel != nil {
		s.loopCancel()
	}
	if s.startedDetectors {
		if err := s.cfg.Scheduler.Stop(); err != nil && err != detectors.ErrSchedulerNotRunning {
			log.Printf("Detector shutdown error: %v", err)
		}
		s.startedDetectors = false
	}
	s.cfg.Timers.Stop()
	if s.cfg.Media != nil {
		s.cfg.Media.Release()
	}
}
