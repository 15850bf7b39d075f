package monitor

import (
	"sync"
	"time"
)

const DefaultAutoSubmitTicks = 10

// Timers runs the two countdowns of an exam session: the exam clock and
// the post-timeout auto-submit. Both signal by closing a channel, which
// makes "exactly once" structural rather than a convention.
// TECHNICAL DISCOVERY: Remaining time is recomputed from the persisted
// start instant on every tick instead of decremented, so a reload or a
// suspended laptop cannot stretch the exam
type Timers struct {
	interval time.Duration
	now      func() time.Time

	expired        chan struct{}
	autoSubmit     chan struct{}
	expireOnce     sync.Once
	autoStartOnce  sync.Once
	autoSubmitOnce sync.Once

	mu        sync.Mutex
	remaining time.Duration
	stopped   bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewTimers builds the timer pair. interval defaults to one second; tests
// inject a shorter one.
func NewTimers(interval time.Duration, now func() time.Time) *Timers {
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Timers{
		interval:   interval,
		now:        now,
		expired:    make(chan struct{}),
		autoSubmit: make(chan struct{}),
		stop:       make(chan struct{}),
	}
}

// StartExamCountdown begins ticking toward startedAt + duration.
func (t *Timers) StartExamCountdown(startedAt time.Time, duration time.Duration) {
	endTime := startedAt.Add(duration)

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.remaining = endTime.Sub(t.now())
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				remaining := endTime.Sub(t.now())
				t.mu.Lock()
				t.remaining = remaining
				t.mu.Unlock()

				if remaining <= 0 {
					t.expireOnce.Do(func() { close(t.expired) })
					return
				}
			}
		}
	}()
}

// StartAutoSubmit begins the fixed reverse countdown. Starting it again is
// a no-op: the countdown can neither restart nor re-fire.
func (t *Timers) StartAutoSubmit(ticks int) {
	if ticks <= 0 {
		ticks = DefaultAutoSubmitTicks
	}

	t.autoStartOnce.Do(func() {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()

			remaining := ticks
			for {
				select {
				case <-t.stop:
					return
				case <-ticker.C:
					remaining--
					if remaining <= 0 {
						t.autoSubmitOnce.Do(func() { close(t.autoSubmit) })
						return
					}
				}
			}
		}()
	})
}

// Expired closes when the exam clock reaches zero.
func (t *Timers) Expired() <-chan struct{} {
	return t.expired
}

// AutoSubmitFired closes when the auto-submit countdown reaches zero.
func (t *Timers) AutoSubmitFired() <-chan struct{} {
	return t.autoSubmit
}

// Remaining returns the exam time left as of the last tick.
func (t *Timers) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Stop halts both countdowns and waits for their goroutines.
func (t *Timers) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	close(t.stop)
	t.mu.Unlock()

	t.wg.Wait()
}
