package detectors

import (
	"context"
	"log"
	"math"
	"time"

	"proctor/pkg/types"
)

const (
	DefaultAudioPollInterval = 3 * time.Second
	DefaultVolumeLimit       = 45.0
	DefaultStdDevLimit       = 10.0
	DefaultWindowSize        = 10
)

// Audio polls the microphone level and fires when the current sample is
// both loud and a statistical outlier against the trailing window.
// FUNCTIONAL DISCOVERY: The two-condition rule separates a sudden voice
// from steady background noise - a constantly loud room has high volume
// but near-zero deviation and never fires
type Audio struct {
	source      AudioSource
	interval    time.Duration
	volumeLimit float64
	stdDevLimit float64
	windowSize  int

	window []float64
}

func NewAudio(source AudioSource, interval time.Duration, volumeLimit, stdDevLimit float64, windowSize int) *Audio {
	if interval <= 0 {
		interval = DefaultAudioPollInterval
	}
	if volumeLimit <= 0 {
		volumeLimit = DefaultVolumeLimit
	}
	if stdDevLimit <= 0 {
		stdDevLimit = DefaultStdDevLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Audio{
		source:      source,
		interval:    interval,
		volumeLimit: volumeLimit,
		stdDevLimit: stdDevLimit,
		windowSize:  windowSize,
	}
}

func (a *Audio) Name() string { return "audio" }

func (a *Audio) Run(ctx context.Context, emit Emit) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level, err := a.source.Level()
			if err != nil {
				log.Printf("Audio sample failed: %v", err)
				continue
			}
			if a.Observe(level) {
				emit(types.EventAudioAnomaly, "Unusual audio detected")
			}
		}
	}
}

// Observe pushes one sample into the window and reports whether it
// qualifies as an anomaly. The current sample is part of the window the
// deviation is computed over.
func (a *Audio) Observe(level float64) bool {
	a.window = append(a.window, level)
	if len(a.window) > a.windowSize {
		a.window = a.window[len(a.window)-a.windowSize:]
	}
	return level > a.volumeLimit && stdDev(a.window) > a.stdDevLimit
}

// stdDev is the population standard deviation of the samples.
func stdDev(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance)
}
