package localstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore persists state as a JSON object in a single file and uses
// fsnotify to observe writes made by other processes sharing the file.
// Writes go through a temp file and rename so a reader never sees a
// partial document.
type FileStore struct {
	path    string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	cache  map[string]string
	subs   map[chan Change]struct{}
	closed bool

	done chan struct{}
}

// NewFileStore opens (or creates) the state file at path and starts
// watching its directory. Renames register as Create events on most
// platforms, so the directory is watched rather than the file itself.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	fs := &FileStore{
		path:  path,
		cache: make(map[string]string),
		subs:  make(map[chan Change]struct{}),
		done:  make(chan struct{}),
	}

	if err := fs.loadInto(fs.cache); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch state directory: %w", err)
	}
	fs.watcher = watcher

	go fs.watchLoop()
	return fs, nil
}

func (fs *FileStore) loadInto(dst map[string]string) error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &dst); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	return nil
}

func (fs *FileStore) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return "", false, ErrStoreClosed
	}
	v, ok := fs.cache[key]
	return v, ok, nil
}

func (fs *FileStore) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrStoreClosed
	}
	fs.cache[key] = value
	return fs.persistLocked()
}

func (fs *FileStore) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrStoreClosed
	}
	if _, ok := fs.cache[key]; !ok {
		return nil
	}
	delete(fs.cache, key)
	return fs.persistLocked()
}

// persistLocked writes the cache atomically. The cache is updated before
// the write, so the diff in watchLoop sees nothing new for our own writes.
func (fs *FileStore) persistLocked() error {
	data, err := json.Marshal(fs.cache)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (fs *FileStore) Watch(ctx context.Context) (<-chan Change, error) {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil, ErrStoreClosed
	}
	ch := make(chan Change, 16)
	fs.subs[ch] = struct{}{}
	fs.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-fs.done:
		}
		fs.mu.Lock()
		if _, ok := fs.subs[ch]; ok {
			delete(fs.subs, ch)
			close(ch)
		}
		fs.mu.Unlock()
	}()

	return ch, nil
}

// watchLoop reloads the file on external writes and emits the diff
// against the in-memory cache.
func (fs *FileStore) watchLoop() {
	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(fs.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fs.reload()
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("State file watch error: %v", err)
		case <-fs.done:
			return
		}
	}
}

func (fs *FileStore) reload() {
	fresh := make(map[string]string)
	if err := fs.loadInto(fresh); err != nil {
		log.Printf("State file reload failed: %v", err)
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return
	}

	var changes []Change
	for key, value := range fresh {
		if old, ok := fs.cache[key]; !ok || old != value {
			changes = append(changes, Change{Key: key, Value: value})
		}
	}
	for key := range fs.cache {
		if _, ok := fresh[key]; !ok {
			changes = append(changes, Change{Key: key, Deleted: true})
		}
	}
	fs.cache = fresh

	for _, change := range changes {
		for ch := range fs.subs {
			select {
			case ch <- change:
			default:
				// A watcher that stopped draining misses the change.
			}
		}
	}
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}
	fs.closed = true
	close(fs.done)
	for ch := range fs.subs {
		delete(fs.subs, ch)
		close(ch)
	}
	fs.mu.Unlock()

	return fs.watcher.Close()
}
