package agent

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// tokenDebounceInterval absorbs the write+chmod event bursts a single
// store save produces.
const tokenDebounceInterval = 500 * time.Millisecond

// TokenWatcher monitors the token store file so an `auth login` or
// `auth logout` in another terminal updates a running chat session.
// The parent directory is watched because the store rewrites the file on
// every save.
type TokenWatcher struct {
	path     string
	onChange func()

	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	stopCh     chan struct{}
	running    bool
	debounceMu sync.Mutex
	debounce   *time.Timer
}

// NewTokenWatcher creates a watcher for the token store at path. onChange
// runs on the watcher goroutine after each debounced change.
func NewTokenWatcher(path string, onChange func()) *TokenWatcher {
	return &TokenWatcher{
		path:     path,
		onChange: onChange,
	}
}

// Start begins watching. Starting an already-running watcher is a no-op.
func (w *TokenWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.loop(watcher.Events, watcher.Errors, w.stopCh)
	return nil
}

func (w *TokenWatcher) loop(events chan fsnotify.Event, errors chan error, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.scheduleChange()
		case _, ok := <-errors:
			if !ok {
				return
			}
		}
	}
}

// scheduleChange resets the debounce timer so rapid successive events
// collapse into one onChange call.
func (w *TokenWatcher) scheduleChange() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(tokenDebounceInterval, w.onChange)
}

// Stop stops watching. Stopping a stopped watcher is a no-op.
func (w *TokenWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	w.watcher.Close()
	w.watcher = nil
	w.running = false

	w.debounceMu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.debounceMu.Unlock()
}
