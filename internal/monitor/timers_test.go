package monitor

import (
	"testing"
	"time"
)

func TestTimers_ExamCountdownFiresOnce(t *testing.T) {
	timers := NewTimers(time.Millisecond, nil)
	defer timers.Stop()

	// An exam whose end time is already in the past expires immediately.
	timers.StartExamCountdown(time.Now().Add(-time.Hour), time.Minute)

	select {
	case <-timers.Expired():
	case <-time.After(2 * time.Second):
		t.Fatal("Expired never fired")
	}

	// The signal is a closed channel: observing it again is immediate and
	// cannot double-fire anything.
	select {
	case <-timers.Expired():
	default:
		t.Error("Expected Expired to remain closed")
	}
}

func TestTimers_ReloadResumesOriginalClock(t *testing.T) {
	// Simulates a reload: the persisted start is old enough that the
	// recomputed remaining time is already negative.
	timers := NewTimers(time.Millisecond, nil)
	defer timers.Stop()

	startedAt := time.Now().Add(-30 * time.Minute)
	timers.StartExamCountdown(startedAt, 10*time.Minute)

	select {
	case <-timers.Expired():
	case <-time.After(2 * time.Second):
		t.Fatal("A reload must not grant a fresh clock")
	}
}

func TestTimers_RemainingRecomputedPerTick(t *testing.T) {
	timers := NewTimers(time.Millisecond, nil)
	defer timers.Stop()

	timers.StartExamCountdown(time.Now(), time.Hour)
	time.Sleep(20 * time.Millisecond)

	remaining := timers.Remaining()
	if remaining <= 0 || remaining > time.Hour {
		t.Errorf("Remaining out of range: %v", remaining)
	}
}

func TestTimers_AutoSubmitFiresAfterTicks(t *testing.T) {
	timers := NewTimers(time.Millisecond, nil)
	defer timers.Stop()

	timers.StartAutoSubmit(10)

	select {
	case <-timers.AutoSubmitFired():
	case <-time.After(2 * time.Second):
		t.Fatal("Auto-submit never fired")
	}
}

func TestTimers_AutoSubmitNeverRestarts(t *testing.T) {
	timers := NewTimers(time.Millisecond, nil)
	defer timers.Stop()

	timers.StartAutoSubmit(2)
	<-timers.AutoSubmitFired()

	// A second start is a no-op: the channel stays closed, nothing panics.
	timers.StartAutoSubmit(2)
	select {
	case <-timers.AutoSubmitFired():
	default:
		t.Error("Expected AutoSubmitFired to remain closed")
	}
}

func TestTimers_StopHaltsCountdowns(t *testing.T) {
	timers := NewTimers(time.Millisecond, nil)

	timers.StartExamCountdown(time.Now(), time.Hour)
	timers.StartAutoSubmit(1000)
	timers.Stop()

	// Stop after Stop is a no-op.
	timers.Stop()

	select {
	case <-timers.Expired():
		t.Error("Expired fired after Stop")
	case <-timers.AutoSubmitFired():
		t.Error("Auto-submit fired after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}
