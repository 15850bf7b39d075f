// Package localstate holds the small per-machine key/value state an exam
// client persists across reloads: the verification flag, the recorded exam
// start time, and the active tab claim. Two sessions sharing one store are
// two tabs on the same machine; the Watch channel is how one session
// observes the other's writes.
package localstate

import "context"

// Change describes a single key mutation observed by a watcher. A deleted
// key has Deleted set and an empty Value.
type Change struct {
	Key     string
	Value   string
	Deleted bool
}

// Store is the persistence surface the exam session reads and writes.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set writes key to value, overwriting any previous value.
	// Last write wins across concurrent writers.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Watch delivers changes made by OTHER writers to the same store.
	// A store never echoes its own writes back to its own watchers.
	// The channel closes when ctx is done or the store is closed.
	Watch(ctx context.Context) (<-chan Change, error)

	Close() error
}

// Key helpers. Keys are namespaced per test so state from one exam never
// bleeds into another on a shared machine.

func VerifiedKey(testID string) string { return "verified-" + testID }
func StartKey(testID string) string    { return "start-" + testID }
func TabKey(testID string) string      { return "tab-" + testID }
