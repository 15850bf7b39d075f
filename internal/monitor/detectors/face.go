package detectors

import (
	"context"
	"log"
	"time"

	"proctor/pkg/types"
)

const (
	DefaultFacePollInterval = 3 * time.Second
	DefaultMinLandmarks     = 5
)

// Face polls the camera and classifies each sample: no face, more than one
// face, or a face too unclear to landmark.
type Face struct {
	source       FrameSource
	interval     time.Duration
	minLandmarks int
}

func NewFace(source FrameSource, interval time.Duration, minLandmarks int) *Face {
	if interval <= 0 {
		interval = DefaultFacePollInterval
	}
	if minLandmarks <= 0 {
		minLandmarks = DefaultMinLandmarks
	}
	return &Face{source: source, interval: interval, minLandmarks: minLandmarks}
}

func (f *Face) Name() string { return "face" }

func (f *Face) Run(ctx context.Context, emit Emit) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			obs, err := f.source.Sample()
			if err != nil {
				// A failed sample is a skipped cycle, not an anomaly.
				log.Printf("Face sample failed: %v", err)
				continue
			}
			f.classify(obs, emit)
		}
	}
}

// classify emits at most one event per sample, checked in severity order.
func (f *Face) classify(obs FaceObservation, emit Emit) {
	switch {
	case obs.FaceCount == 0:
		emit(types.EventNoFace, "No face visible on camera")
	case obs.FaceCount > 1:
		emit(types.EventMultipleFaces, "Multiple faces visible on camera")
	case obs.Landmarks < f.minLandmarks:
		emit(types.EventFaceUnclear, "Face not clearly visible on camera")
	}
}
