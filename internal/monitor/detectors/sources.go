// Package detectors implements the integrity detectors that run while an
// exam session is active, and the scheduler that owns their lifecycles.
package detectors

// FaceObservation is one camera sample reduced to what the detectors need.
type FaceObservation struct {
	FaceCount int
	Landmarks int
}

// FrameSource produces camera samples. An error means the sample could not
// be taken this cycle, not that the exam should stop.
type FrameSource interface {
	Sample() (FaceObservation, error)
}

// AudioSource reports the current microphone volume level.
type AudioSource interface {
	Level() (float64, error)
}
