package detectors

import (
	"context"

	"proctor/pkg/types"
)

// Fullscreen reports a FullscreenExit whenever the exam surface leaves
// fullscreen.
type Fullscreen struct {
	inFullscreen <-chan bool
}

func NewFullscreen(inFullscreen <-chan bool) *Fullscreen {
	return &Fullscreen{inFullscreen: inFullscreen}
}

func (f *Fullscreen) Name() string { return "fullscreen" }

func (f *Fullscreen) Run(ctx context.Context, emit Emit) {
	for {
		select {
		case <-ctx.Done():
			return
		case active, ok := <-f.inFullscreen:
			if !ok {
				return
			}
			if !active {
				emit(types.EventFullscreenExit, "Exited fullscreen mode")
			}
		}
	}
}
