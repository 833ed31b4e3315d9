// Package sideload imports manuscripts dropped into the inbox directory
// as local novels. A watcher waits for dropped files to stop changing,
// the importer splits them into chapters, and finished files are
// archived under the inbox's done directory.
package sideload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultSettleDelay is how long a file must stay unchanged before it
// counts as fully written. Network copies arrive as bursts of writes.
const defaultSettleDelay = 500 * time.Millisecond

// ignorePatterns are never imported. Transfer tools write temporary
// names first and rename into place.
var ignorePatterns = []string{
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.temp",
	"*.part",
	"*.partial",
}

// Event signals that a dropped file has settled and is ready to import.
type Event struct {
	ModTime time.Time
	Path    string
	Size    int64
}

// Watcher watches the inbox directory with fsnotify and debounces
// write bursts: a file is announced only after its size and mtime
// have stopped changing for the settle delay.
type Watcher struct {
	logger *slog.Logger
	settle time.Duration
	fsw    *fsnotify.Watcher

	pending map[string]*pendingFile // path -> settle state
	mu      sync.Mutex              // protects pending map

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// pendingFile tracks a file that may still be changing.
type pendingFile struct {
	modTime time.Time
	timer   *time.Timer
	size    int64
}

// NewWatcher creates a watcher for the given inbox directory.
// The directory must already exist.
func NewWatcher(dir string, settleDelay time.Duration, logger *slog.Logger) (*Watcher, error) {
	if settleDelay <= 0 {
		settleDelay = defaultSettleDelay
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Clean(dir)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		logger:  logger,
		settle:  settleDelay,
		fsw:     fsw,
		pending: make(map[string]*pendingFile),
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}, nil
}

// Start begins processing file system events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.processEvents(ctx)
}

// Events returns the channel of settled files.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and cancels pending settle timers.
func (w *Watcher) Stop() {
	close(w.done)

	w.mu.Lock()
	for _, pending := range w.pending {
		pending.timer.Stop()
	}
	clear(w.pending)
	w.mu.Unlock()

	w.fsw.Close()
	w.wg.Wait()
	close(w.events)
}

// processEvents pumps fsnotify events into the settle tracker.
func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", "error", err)
		}
	}
}

// handleFsnotifyEvent feeds write and create events into settling and
// drops pending state for files that disappear.
func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name

	if ignoredFile(path) {
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.cancelPending(path)
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		w.startSettling(path)
	}
}

// startSettling starts or restarts the settle timer for a file.
func (w *Watcher) startSettling(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}

	// Subdirectories (like done/) are not watched.
	if info.IsDir() {
		return
	}

	pending := &pendingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
	}
	pending.timer = time.AfterFunc(w.settle, func() {
		w.checkSettled(path)
	})
	w.pending[path] = pending
}

// checkSettled re-stats a file after the settle delay. If it changed
// in the meantime the timer restarts; otherwise the file is announced.
func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending, exists := w.pending[path]
	if !exists {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Removed while settling.
		delete(w.pending, path)
		return
	}

	if info.Size() != pending.size || !info.ModTime().Equal(pending.modTime) {
		// Still being written, wait another round.
		pending.size = info.Size()
		pending.modTime = info.ModTime()
		pending.timer = time.AfterFunc(w.settle, func() {
			w.checkSettled(path)
		})
		return
	}

	delete(w.pending, path)

	w.emit(Event{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// cancelPending drops settle state for a path.
func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pending, exists := w.pending[path]; exists {
		pending.timer.Stop()
		delete(w.pending, path)
	}
}

// emit delivers an event unless the watcher is shutting down.
func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}

// ignoredFile reports whether the path is hidden or matches an
// ignore pattern.
func ignoredFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, pattern := range ignorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}
