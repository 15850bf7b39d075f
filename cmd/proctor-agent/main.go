// Command proctor-agent runs one student's exam session from a terminal:
// invite validation, the verification gate, the detector set and the
// realtime control channel, ending when the session reaches a terminal
// phase.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"proctor/internal/localstate"
	"proctor/internal/monitor"
	"proctor/internal/monitor/detectors"
	"proctor/internal/realtime"
	"proctor/pkg/types"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		serverURL      = flag.String("server", "http://localhost:8080", "proctor server base URL")
		email          = flag.String("email", "", "student email")
		name           = flag.String("name", "", "student display name (defaults to the email local part)")
		inviteCode     = flag.String("invite", "", "invite code for the test")
		stateDir       = flag.String("state-dir", defaultStateDir(), "directory for persisted session state")
		descriptorPath = flag.String("descriptor", "", "path to a JSON face descriptor for the verification gate")
	)
	flag.Parse()

	if *email == "" || *inviteCode == "" {
		flag.Usage()
		return errors.New("both -email and -invite are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := monitor.NewServerClient(*serverURL)

	testID, displayName, err := client.ValidateInvite(ctx, *email, *inviteCode)
	if err != nil {
		return fmt.Errorf("invite validation failed: %w", err)
	}
	if *name != "" {
		displayName = *name
	}
	log.Printf("Invite accepted: test=%s name=%s", testID, displayName)

	test, err := client.GetTest(ctx, testID)
	if err != nil {
		return fmt.Errorf("failed to load test: %w", err)
	}
	log.Printf("Test %q: %d minutes", test.Title, test.DurationMinutes)

	store, err := localstate.NewFileStore(filepath.Join(*stateDir, "session-"+testID+".json"))
	if err != nil {
		return fmt.Errorf("failed to open session state: %w", err)
	}
	defer store.Close()

	if err := passGate(ctx, client, store, testID, *email, *descriptorPath); err != nil {
		return err
	}

	tabID := uuid.New().String()
	control, err := realtime.Dial(ctx, *serverURL, testID, *email, tabID)
	if err != nil {
		// The control channel is advisory; the exam proceeds without it.
		log.Printf("Control channel unavailable: %v", err)
	} else {
		defer control.Close()
	}

	scheduler := detectors.NewScheduler()
	headless := &headlessMedia{}
	for _, d := range []detectors.Detector{
		detectors.NewDuplicateTab(store, testID, tabID),
		detectors.NewFace(headless, 0, 0),
		detectors.NewAudio(headless, 0, 0, 0, 0),
	} {
		if err := scheduler.Add(d); err != nil {
			return err
		}
	}

	cfg := monitor.SessionConfig{
		TestID:      testID,
		Email:       *email,
		Name:        displayName,
		TabID:       tabID,
		Duration:    test.Duration(),
		Store:       store,
		Marker:      client,
		Sink:        client,
		Permissions: headless,
		Media:       headless,
		Scheduler:   scheduler,
		Timers:      monitor.NewTimers(0, nil),
	}
	if control != nil {
		cfg.Control = control.Events()
	}

	session, err := monitor.NewSession(cfg)
	if err != nil {
		return err
	}
	if err := session.Start(ctx); err != nil {
		return err
	}
	if session.Phase() == types.PhaseUnstarted {
		if err := session.MarkVerified(); err != nil {
			return fmt.Errorf("could not enter the exam: %w", err)
		}
	}
	if err := session.BeginExam(); err != nil {
		return fmt.Errorf("could not start the exam: %w", err)
	}
	log.Printf("Exam running; interrupt to submit")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-session.Done():
			fmt.Printf("Session ended: %s\n", session.Phase())
			return nil
		case <-signalCh:
			log.Printf("Submitting exam")
			if err := session.Submit(); err != nil {
				log.Printf("Submit rejected: %v", err)
				continue
			}
			if err := session.Confirm(); err != nil {
				log.Printf("Confirm rejected: %v", err)
			}
		}
	}
}

// passGate runs the verification gate unless a persisted flag says a
// previous run already passed it.
func passGate(ctx context.Context, client *monitor.ServerClient, store localstate.Store,
	testID, email, descriptorPath string) error {
	gate := monitor.NewGate(
		fileFrameGrabber{path: descriptorPath},
		jsonDescriptorExtractor{},
		client, store, testID, email,
	)

	verified, err := gate.Verified()
	if err != nil {
		return err
	}
	if verified {
		log.Printf("Already verified, skipping the gate")
		return nil
	}

	if err := gate.Verify(ctx); err != nil {
		return fmt.Errorf("face verification failed (retry with -descriptor): %w", err)
	}
	log.Printf("Face verified")
	return nil
}

// fileFrameGrabber reads a pre-captured descriptor file in place of a
// live camera frame.
type fileFrameGrabber struct {
	path string
}

func (g fileFrameGrabber) Grab() (monitor.Frame, error) {
	if g.path == "" {
		return nil, errors.New("no camera available: supply -descriptor")
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil, err
	}
	return monitor.Frame(data), nil
}

// jsonDescriptorExtractor parses the "frame" as a JSON float array.
type jsonDescriptorExtractor struct{}

func (jsonDescriptorExtractor) Extract(frame monitor.Frame) ([]float64, error) {
	var descriptor []float64
	if err := json.Unmarshal(frame, &descriptor); err != nil {
		return nil, fmt.Errorf("invalid descriptor file: %w", err)
	}
	return descriptor, nil
}

// headlessMedia stands in for camera, microphone and display when the
// agent runs without them. Permission requests succeed (there is nothing
// to grant); samples fail, which detectors treat as skipped cycles.
type headlessMedia struct{}

func (*headlessMedia) RequestMicrophone() error { return nil }
func (*headlessMedia) RequestFullscreen() error { return nil }
func (*headlessMedia) Release()                 {}

func (*headlessMedia) Sample() (detectors.FaceObservation, error) {
	return detectors.FaceObservation{}, errors.New("no camera available")
}

func (*headlessMedia) Level() (float64, error) {
	return 0, errors.New("no microphone available")
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".proctor-agent")
}
