package detectors

import (
	"context"

	"proctor/pkg/types"
)

// BackNavigation reports an attempt to navigate backwards out of the exam.
// The session treats the event as a forced end in addition to logging it.
type BackNavigation struct {
	attempts <-chan struct{}
}

func NewBackNavigation(attempts <-chan struct{}) *BackNavigation {
	return &BackNavigation{attempts: attempts}
}

func (b *BackNavigation) Name() string { return "backnav" }

func (b *BackNavigation) Run(ctx context.Context, emit Emit) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-b.attempts:
			if !ok {
				return
			}
			emit(types.EventBackNavigation, "Attempted to navigate back during the exam")
		}
	}
}
