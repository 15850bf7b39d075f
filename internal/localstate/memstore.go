package localstate

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Sessions that should behave like two
// tabs on one machine share a single MemoryStore and observe each other
// through handles.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[*memHandle]map[chan Change]struct{}
	closed   bool
}

// memHandle scopes writes to one writer so a watcher never sees its own
// mutations, matching FileStore's suppress-own-writes behavior.
type memHandle struct {
	store *MemoryStore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		watchers: make(map[*memHandle]map[chan Change]struct{}),
	}
}

// Handle returns a Store view of the shared state. Each tab gets its own
// handle.
func (ms *MemoryStore) Handle() Store {
	h := &memHandle{store: ms}
	ms.mu.Lock()
	ms.watchers[h] = make(map[chan Change]struct{})
	ms.mu.Unlock()
	return h
}

func (ms *MemoryStore) get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return "", false, ErrStoreClosed
	}
	v, ok := ms.values[key]
	return v, ok, nil
}

func (ms *MemoryStore) set(from *memHandle, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrStoreClosed
	}
	ms.values[key] = value
	ms.notify(from, Change{Key: key, Value: value})
	return nil
}

func (ms *MemoryStore) delete(from *memHandle, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return ErrStoreClosed
	}
	if _, ok := ms.values[key]; !ok {
		return nil
	}
	delete(ms.values, key)
	ms.notify(from, Change{Key: key, Deleted: true})
	return nil
}

// notify fans the change out to every handle except the writer's own.
// Slow watchers are skipped rather than blocked on; a tab that stopped
// draining its channel has effectively stopped watching.
func (ms *MemoryStore) notify(from *memHandle, change Change) {
	for h, chans := range ms.watchers {
		if h == from {
			continue
		}
		for ch := range chans {
			select {
			case ch <- change:
			default:
			}
		}
	}
}

func (ms *MemoryStore) watch(h *memHandle, ctx context.Context) (<-chan Change, error) {
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return nil, ErrStoreClosed
	}
	ch := make(chan Change, 16)
	ms.watchers[h][ch] = struct{}{}
	ms.mu.Unlock()

	go func() {
		<-ctx.Done()
		ms.mu.Lock()
		if chans, ok := ms.watchers[h]; ok {
			if _, registered := chans[ch]; registered {
				delete(chans, ch)
				close(ch)
			}
		}
		ms.mu.Unlock()
	}()

	return ch, nil
}

func (ms *MemoryStore) closeHandle(h *memHandle) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for ch := range ms.watchers[h] {
		close(ch)
	}
	delete(ms.watchers, h)
	return nil
}

// Close shuts the shared store down; all handles fail afterwards.
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return nil
	}
	ms.closed = true
	for h, chans := range ms.watchers {
		for ch := range chans {
			close(ch)
		}
		delete(ms.watchers, h)
	}
	return nil
}

func (h *memHandle) Get(key string) (string, bool, error) { return h.store.get(key) }
func (h *memHandle) Set(key, value string) error          { return h.store.set(h, key, value) }
func (h *memHandle) Delete(key string) error              { return h.store.delete(h, key) }
func (h *memHandle) Watch(ctx context.Context) (<-chan Change, error) {
	return h.store.watch(h, ctx)
}
func (h *memHandle) Close() error { return h.store.closeHandle(h) }
