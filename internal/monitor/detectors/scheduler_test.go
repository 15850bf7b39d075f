package detectors

import (
	"context"
	"testing"
	"time"

	"proctor/internal/localstate"
	"proctor/pkg/types"
)

func TestScheduler_StartStopLifecycle(t *testing.T) {
	scheduler := NewScheduler()

	hidden := make(chan bool)
	if err := scheduler.Add(NewVisibility(hidden)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != ErrSchedulerRunning {
		t.Errorf("Expected ErrSchedulerRunning on double start, got %v", err)
	}

	// Stop cancels and waits for every detector goroutine.
	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; a detector ignored cancellation")
	}

	if err := scheduler.Stop(); err != ErrSchedulerNotRunning {
		t.Errorf("Expected ErrSchedulerNotRunning on double stop, got %v", err)
	}
}

func TestScheduler_DuplicateNameRejected(t *testing.T) {
	scheduler := NewScheduler()

	if err := scheduler.Add(NewVisibility(nil)); err != nil {
		t.Fatalf("First add failed: %v", err)
	}
	if err := scheduler.Add(NewVisibility(nil)); err == nil {
		t.Error("Expected duplicate detector name to be rejected")
	}
}

func TestScheduler_EventsFanIn(t *testing.T) {
	scheduler := NewScheduler()

	hidden := make(chan bool, 1)
	fullscreen := make(chan bool, 1)
	if err := scheduler.Add(NewVisibility(hidden)); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.Add(NewFullscreen(fullscreen)); err != nil {
		t.Fatal(err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scheduler.Stop()

	hidden <- true
	fullscreen <- false

	seen := make(map[types.EventKind]bool)
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case event := <-scheduler.Events():
			seen[event.Kind] = true
			if event.OccurredAt.IsZero() {
				t.Error("Expected events to be timestamped")
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for events; saw %v", seen)
		}
	}

	if !seen[types.EventTabSwitch] || !seen[types.EventFullscreenExit] {
		t.Errorf("Expected both event kinds, saw %v", seen)
	}
}

func TestScheduler_NoEventsAfterStop(t *testing.T) {
	scheduler := NewScheduler()
	hidden := make(chan bool, 4)
	if err := scheduler.Add(NewVisibility(hidden)); err != nil {
		t.Fatal(err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	scheduler.Stop()

	hidden <- true
	select {
	case event := <-scheduler.Events():
		t.Errorf("Received %s after stop", event.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDuplicateTab_SecondClaimFires(t *testing.T) {
	shared := localstate.NewMemoryStore()
	defer shared.Close()

	firstTab := shared.Handle()
	secondTab := shared.Handle()

	scheduler := NewScheduler()
	testID := "a1b2c3d4-e5f6-4a5b-8c9d-0e1f2a3b4c5d"
	if err := scheduler.Add(NewDuplicateTab(firstTab, testID, "tab-one")); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer scheduler.Stop()

	// Wait for the first tab's claim to land.
	deadline := time.After(2 * time.Second)
	for {
		value, ok, err := secondTab.Get(localstate.TabKey(testID))
		if err != nil {
			t.Fatal(err)
		}
		if ok && value == "tab-one" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("First tab never claimed the exam")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The second tab overwrites the claim; last write wins.
	if err := secondTab.Set(localstate.TabKey(testID), "tab-two"); err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-scheduler.Events():
		if event.Kind != types.EventDuplicateTab {
			t.Errorf("Expected duplicate tab event, got %s", event.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("First tab never observed the second claim")
	}
}

func TestDuplicateTab_OwnClaimDoesNotFire(t *testing.T) {
	shared := localstate.NewMemoryStore()
	defer shared.Close()

	scheduler := NewScheduler()
	testID := "a1b2c3d4-e5f6-4a5b-8c9d-0e1f2a3b4c5d"
	if err := scheduler.Add(NewDuplicateTab(shared.Handle(), testID, "tab-one")); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer scheduler.Stop()

	select {
	case event := <-scheduler.Events():
		t.Errorf("Detector fired %s on its own claim", event.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}
