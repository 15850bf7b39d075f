package detectors

import (
	"context"
	"log"

	"proctor/internal/localstate"
	"proctor/pkg/types"
)

// DuplicateTab claims the exam's tab key on start and watches for another
// writer overwriting it. Last write wins: whichever tab wrote last holds
// the claim, and every earlier tab observes the change and blocks itself.
type DuplicateTab struct {
	store  localstate.Store
	testID string
	tabID  string
}

func NewDuplicateTab(store localstate.Store, testID, tabID string) *DuplicateTab {
	return &DuplicateTab{store: store, testID: testID, tabID: tabID}
}

func (d *DuplicateTab) Name() string { return "duplicate" }

func (d *DuplicateTab) Run(ctx context.Context, emit Emit) {
	key := localstate.TabKey(d.testID)

	// Watch before claiming so a near-simultaneous second tab cannot slip
	// its write between our claim and our first observation.
	changes, err := d.store.Watch(ctx)
	if err != nil {
		log.Printf("Duplicate tab detector disabled: %v", err)
		return
	}

	if err := d.store.Set(key, d.tabID); err != nil {
		log.Printf("Failed to claim exam tab: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Key != key || change.Deleted {
				continue
			}
			if change.Value != d.tabID {
				// FUNCTIONAL DISCOVERY: Fire once and stop - the session
				// is terminal after a duplicate claim, so there is nothing
				// left to watch
				emit(types.EventDuplicateTab, "Exam opened in another tab")
				return
			}
		}
	}
}
