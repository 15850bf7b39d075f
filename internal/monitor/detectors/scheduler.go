package detectors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"proctor/pkg/types"
)

var (
	ErrSchedulerRunning    = errors.New("detector scheduler is already running")
	ErrSchedulerNotRunning = errors.New("detector scheduler is not running")
)

// Emit delivers one integrity event from a detector to the scheduler.
type Emit func(kind types.EventKind, message string)

// Detector is one independent integrity check. Run must return when ctx is
// canceled and emit at most one event per detection cycle.
type Detector interface {
	Name() string
	Run(ctx context.Context, emit Emit)
}

// Scheduler owns the detector goroutines. One Start spawns them all under
// a single derived context, one Stop cancels and waits for them all.
// ARCHITECTURAL DISCOVERY: Detectors never see each other - events fan
// into one buffered channel and a stalled consumer drops events instead
// of serializing the detectors behind it
type Scheduler struct {
	mu        sync.Mutex
	detectors map[string]Detector
	events    chan types.IntegrityEvent
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		detectors: make(map[string]Detector),
		events:    make(chan types.IntegrityEvent, 64),
	}
}

// Add registers a detector. Names must be unique; adding while running is
// an error.
func (s *Scheduler) Add(d Detector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}
	if _, exists := s.detectors[d.Name()]; exists {
		return fmt.Errorf("detector %q already registered", d.Name())
	}
	s.detectors[d.Name()] = d
	return nil
}

// Events is the fan-in channel of all detector output.
func (s *Scheduler) Events() <-chan types.IntegrityEvent {
	return s.events
}

// Start spawns one goroutine per registered detector.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, d := range s.detectors {
		d := d
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			d.Run(runCtx, s.emit(runCtx, d.Name()))
		}()
	}

	log.Printf("Detector scheduler started with %d detectors", len(s.detectors))
	return nil
}

// Stop cancels every detector and waits for them to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	return nil
}

// emit builds the per-detector delivery function.
// TECHNICAL DISCOVERY: Non-blocking send - dropping an event under
// backpressure is better than one slow consumer freezing every detector
func (s *Scheduler) emit(ctx context.Context, name string) Emit {
	return func(kind types.EventKind, message string) {
		if ctx.Err() != nil {
			return
		}
		event := types.IntegrityEvent{
			Kind:       kind,
			Message:    message,
			OccurredAt: time.Now().UTC(),
		}
		select {
		case s.events <- event:
		default:
			log.Printf("Dropping %s event from %s: consumer not draining", kind, name)
		}
	}
}
