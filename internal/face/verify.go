package face

import (
	"context"
	"errors"
	"fmt"
	"math"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// DefaultMatchThreshold is the distance below which two descriptors are
// considered the same person. 0.6 is the conventional operating point for
// 128-dimension face embeddings.
const DefaultMatchThreshold = 0.6

var (
	ErrDescriptorLength = errors.New("descriptors must have equal, non-zero length")
)

// EuclideanDistance computes the L2 distance between two descriptors.
func EuclideanDistance(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, ErrDescriptorLength
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Verifier compares submitted descriptors against enrolled references.
type Verifier struct {
	store     interfaces.DescriptorStore
	threshold float64
}

// NewVerifier creates a verifier. A non-positive threshold falls back to
// the default.
func NewVerifier(store interfaces.DescriptorStore, threshold float64) *Verifier {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Verifier{store: store, threshold: threshold}
}

// Enroll registers the reference descriptor for a student.
func (v *Verifier) Enroll(ctx context.Context, email string, descriptor []float64) error {
	if err := types.ValidateDescriptor(descriptor); err != nil {
		return err
	}
	if err := v.store.SaveDescriptor(ctx, email, descriptor); err != nil {
		return fmt.Errorf("failed to save descriptor: %w", err)
	}
	return nil
}

// Verify reports whether the submitted descriptor matches the student's
// enrolled reference.
// FUNCTIONAL DISCOVERY: Strict less-than - a distance exactly at the
// threshold is a rejection, so the boundary is unambiguous
func (v *Verifier) Verify(ctx context.Context, email string, descriptor []float64) (bool, error) {
	if err := types.ValidateDescriptor(descriptor); err != nil {
		return false, err
	}

	registered, err := v.store.GetDescriptor(ctx, email)
	if err != nil {
		return false, err
	}

	distance, err := EuclideanDistance(descriptor, registered)
	if err != nil {
		return false, err
	}

	return distance < v.threshold, nil
}
