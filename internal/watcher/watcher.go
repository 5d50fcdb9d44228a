package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Filter reports whether a project-relative slash path should be ignored.
type Filter func(rel string, isDir bool) bool

// ChangeHandler runs once per debounced batch with the changed
// project-relative paths, sorted.
type ChangeHandler func(ctx context.Context, paths []string) error

// Watcher watches a project tree and re-runs analysis after changes settle.
type Watcher struct {
	root      string
	fsWatcher *fsnotify.Watcher
	handler   ChangeHandler
	ignore    Filter
	logger    *slog.Logger

	// Debouncing
	debounceDelay time.Duration
	pendingFiles  map[string]struct{}
	pendingMu     sync.Mutex
	debounceTimer *time.Timer

	// one handler run at a time
	runMu sync.Mutex

	onError func(error)

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceDelay sets how long the tree must stay quiet before the handler runs.
func WithDebounceDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceDelay = d
		}
	}
}

// WithFilter skips paths the filter rejects.
func WithFilter(f Filter) Option {
	return func(w *Watcher) { w.ignore = f }
}

// WithOnError sets the callback for watch and handler errors.
func WithOnError(fn func(error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher over every directory below root.
func New(root string, handler ChangeHandler, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:          abs,
		fsWatcher:     fsWatcher,
		handler:       handler,
		ignore:        func(string, bool) bool { return false },
		logger:        slog.Default(),
		debounceDelay: 500 * time.Millisecond,
		pendingFiles:  make(map[string]struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if err := w.addDirs(w.root); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to add directories to watch: %w", err)
	}
	return w, nil
}

// addDirs recursively adds the directories below dir that the filter keeps.
func (w *Watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.rel(p); rel != "." && w.ignore(rel, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

func (w *Watcher) rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// Start begins watching for changes.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.eventLoop()
	}()
}

// Stop stops watching, cancels a running handler and waits for it.
// Later calls are no-ops.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.cancel()
		w.pendingMu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.pendingMu.Unlock()
		err = w.fsWatcher.Close()
		w.wg.Wait()
		w.runMu.Lock()
		w.runMu.Unlock()
	})
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(event.Name); err != nil {
				w.reportError(err)
			}
			return
		}
	}

	rel := w.rel(event.Name)
	if w.ignore(rel, false) {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pendingFiles[rel] = struct{}{}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.trigger)
}

// trigger hands the pending batch to the handler.
func (w *Watcher) trigger() {
	w.pendingMu.Lock()
	files := make([]string, 0, len(w.pendingFiles))
	for f := range w.pendingFiles {
		files = append(files, f)
	}
	w.pendingFiles = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(files) == 0 || w.ctx.Err() != nil {
		return
	}
	sort.Strings(files)

	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.logger.Debug("change batch ready", "files", len(files))
	if err := w.handler(w.ctx, files); err != nil {
		w.reportError(fmt.Errorf("analysis failed: %w", err))
	}
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
		return
	}
	w.logger.Warn("watch error", "error", err)
}
