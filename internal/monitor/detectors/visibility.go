package detectors

import (
	"context"

	"proctor/pkg/types"
)

// Visibility reports a TabSwitch whenever the exam surface becomes hidden.
type Visibility struct {
	hidden <-chan bool
}

// NewVisibility builds a detector over a hidden-state feed: true means the
// exam surface lost visibility.
func NewVisibility(hidden <-chan bool) *Visibility {
	return &Visibility{hidden: hidden}
}

func (v *Visibility) Name() string { return "visibility" }

func (v *Visibility) Run(ctx context.Context, emit Emit) {
	for {
		select {
		case <-ctx.Done():
			return
		case isHidden, ok := <-v.hidden:
			if !ok {
				return
			}
			if isHidden {
				emit(types.EventTabSwitch, "Switched away from the exam tab")
			}
		}
	}
}
