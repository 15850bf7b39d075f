package detectors

import (
	"math"
	"testing"
)

func TestAudio_QuietRoomNeverFires(t *testing.T) {
	audio := NewAudio(nil, 0, 0, 0, 0)

	for i := 0; i < 50; i++ {
		if audio.Observe(20) {
			t.Fatalf("Quiet sample %d fired", i)
		}
	}
}

func TestAudio_SteadyLoudRoomNeverFires(t *testing.T) {
	audio := NewAudio(nil, 0, 0, 0, 0)

	// Constantly loud: above the volume limit but zero deviation.
	for i := 0; i < 50; i++ {
		if audio.Observe(50) {
			t.Fatalf("Steady loud sample %d fired despite zero deviation", i)
		}
	}
}

func TestAudio_SuddenSpikeFires(t *testing.T) {
	audio := NewAudio(nil, 0, 0, 0, 0)

	// Nine quiet samples then a spike: both conditions hold.
	for i := 0; i < 9; i++ {
		if audio.Observe(9) {
			t.Fatalf("Quiet sample %d fired", i)
		}
	}
	if !audio.Observe(50) {
		t.Error("Expected the spike after a quiet window to fire")
	}
}

func TestAudio_LoudButStableOutlierDoesNotFire(t *testing.T) {
	audio := NewAudio(nil, 0, 0, 0, 0)

	// A loud sample whose window deviation stays under the limit.
	for i := 0; i < 9; i++ {
		audio.Observe(44)
	}
	// Window becomes nine 44s and one 46: stddev 0.6, volume 46 > 45.
	if audio.Observe(46) {
		t.Error("Expected a barely-loud sample in a stable window to not fire")
	}
}

func TestAudio_WindowSlides(t *testing.T) {
	audio := NewAudio(nil, 0, 0, 0, 0)

	// Fill well past the window size; only the trailing ten samples count.
	for i := 0; i < 25; i++ {
		audio.Observe(9)
	}
	if len(audio.window) != DefaultWindowSize {
		t.Fatalf("Expected window capped at %d, got %d", DefaultWindowSize, len(audio.window))
	}
	if !audio.Observe(50) {
		t.Error("Expected spike to fire against the trailing window")
	}
}

func TestStdDev(t *testing.T) {
	if got := stdDev(nil); got != 0 {
		t.Errorf("Expected 0 for empty input, got %f", got)
	}
	if got := stdDev([]float64{5, 5, 5}); got != 0 {
		t.Errorf("Expected 0 for constant input, got %f", got)
	}

	// Population stddev of {2, 4}: mean 3, variance 1.
	if got := stdDev([]float64{2, 4}); math.Abs(got-1) > 1e-9 {
		t.Errorf("Expected 1, got %f", got)
	}
}
