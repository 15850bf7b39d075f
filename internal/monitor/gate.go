package monitor

import (
	"context"
	"fmt"

	"proctor/internal/localstate"
)

// Frame is one captured camera image.
type Frame []byte

// FrameGrabber captures a single frame for the verification gate.
type FrameGrabber interface {
	Grab() (Frame, error)
}

// DescriptorExtractor reduces a frame to a fixed-length face descriptor.
// An empty result means no face was found in the frame.
type DescriptorExtractor interface {
	Extract(frame Frame) ([]float64, error)
}

// FaceVerifier is the server-side comparison the gate submits to.
type FaceVerifier interface {
	VerifyFace(ctx context.Context, email string, descriptor []float64) (bool, error)
}

// Gate is the one-shot identity check a student passes before the session
// can move past Unstarted. Every failure mode is retryable; the gate holds
// no state between attempts beyond the persisted verified flag.
type Gate struct {
	grabber   FrameGrabber
	extractor DescriptorExtractor
	verifier  FaceVerifier
	store     localstate.Store
	testID    string
	email     string
}

func NewGate(grabber FrameGrabber, extractor DescriptorExtractor, verifier FaceVerifier,
	store localstate.Store, testID, email string) *Gate {
	return &Gate{
		grabber:   grabber,
		extractor: extractor,
		verifier:  verifier,
		store:     store,
		testID:    testID,
		email:     email,
	}
}

// Verified reports whether a previous attempt already passed. The flag is
// persisted so a reload skips the gate.
func (g *Gate) Verified() (bool, error) {
	_, ok, err := g.store.Get(localstate.VerifiedKey(g.testID))
	return ok, err
}

// Verify runs one gate attempt: grab a frame, extract the descriptor,
// submit it for comparison. On a match the verified flag is persisted.
func (g *Gate) Verify(ctx context.Context) error {
	frame, err := g.grabber.Grab()
	if err != nil {
		return fmt.Errorf("failed to capture frame: %w", err)
	}

	descriptor, err := g.extractor.Extract(frame)
	if err != nil {
		return fmt.Errorf("failed to extract face descriptor: %w", err)
	}
	if len(descriptor) == 0 {
		return fmt.Errorf("%w: no face found in frame", ErrFaceNotMatched)
	}

	matched, err := g.verifier.VerifyFace(ctx, g.email, descriptor)
	if err != nil {
		return fmt.Errorf("verification request failed: %w", err)
	}
	if !matched {
		return ErrFaceNotMatched
	}

	if err := g.store.Set(localstate.VerifiedKey(g.testID), "true"); err != nil {
		return fmt.Errorf("failed to persist verification: %w", err)
	}
	return nil
}
