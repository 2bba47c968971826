// Package watcher re-runs stub generation when native sources change.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before changes are reported.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a SourceWatcher.
type Options struct {
	// Dirs are watched recursively.
	Dirs []string
	// Extensions lists the file extensions that count as changes, e.g. ".cpp".
	Extensions []string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// SkipDir reports directories that should not be watched.
	SkipDir func(path string) bool
	Logger  *zap.SugaredLogger
}

// SourceWatcher monitors source directories and reports debounced batches
// of changed files. Events keep accumulating while paused.
type SourceWatcher struct {
	watcher       *fsnotify.Watcher
	extensions    map[string]bool
	skipDir       func(string) bool
	debounceTime  time.Duration
	logger        *zap.SugaredLogger
	callback      func(files []string)
	ctx           context.Context
	cancel        context.CancelFunc
	paused        bool
	pausedMu      sync.RWMutex
	accumulated   map[string]bool
	accumulatedMu sync.Mutex
	debounceTimer *time.Timer
	timerMu       sync.Mutex
	stopOnce      sync.Once
	doneCh        chan struct{}
}

// New creates a watcher over opts.Dirs. It fails if any directory cannot
// be watched.
func New(opts Options) (*SourceWatcher, error) {
	if len(opts.Dirs) == 0 {
		return nil, errors.New("no directories to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}

	extMap := make(map[string]bool)
	for _, ext := range opts.Extensions {
		extMap[ext] = true
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.SkipDir == nil {
		opts.SkipDir = func(string) bool { return false }
	}

	sw := &SourceWatcher{
		watcher:      watcher,
		extensions:   extMap,
		skipDir:      opts.SkipDir,
		debounceTime: opts.Debounce,
		logger:       opts.Logger,
		accumulated:  make(map[string]bool),
		doneCh:       make(chan struct{}),
	}

	for _, dir := range opts.Dirs {
		if err := sw.addDirectoriesRecursively(dir); err != nil {
			watcher.Close()
			return nil, errors.Wrapf(err, "failed to watch %s", dir)
		}
	}
	return sw, nil
}

// Start begins watching. callback receives each debounced batch, sorted,
// from the watch goroutine; no new batch is delivered until it returns.
func (sw *SourceWatcher) Start(ctx context.Context, callback func(files []string)) error {
	if callback == nil {
		return errors.New("nil callback")
	}

	sw.callback = callback
	sw.ctx, sw.cancel = context.WithCancel(ctx)

	go sw.watch()
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (sw *SourceWatcher) Stop() error {
	var err error
	sw.stopOnce.Do(func() {
		if sw.cancel != nil {
			sw.cancel()
			<-sw.doneCh
		} else {
			close(sw.doneCh)
		}
		err = sw.watcher.Close()
	})
	return err
}

// Done is closed once the watch loop has exited.
func (sw *SourceWatcher) Done() <-chan struct{} {
	return sw.doneCh
}

// Pause stops delivering batches but continues accumulating events.
func (sw *SourceWatcher) Pause() {
	sw.pausedMu.Lock()
	defer sw.pausedMu.Unlock()
	sw.paused = true
}

// Resume delivers anything accumulated while paused, then continues.
func (sw *SourceWatcher) Resume() {
	sw.pausedMu.Lock()
	wasPaused := sw.paused
	sw.paused = false
	sw.pausedMu.Unlock()

	if wasPaused {
		sw.flush()
	}
}

// watch is the main event loop.
func (sw *SourceWatcher) watch() {
	defer close(sw.doneCh)

	fireCh := make(chan struct{}, 1)

	for {
		select {
		case <-sw.ctx.Done():
			sw.stopDebounceTimer()
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := sw.addDirectoriesRecursively(event.Name); err != nil {
						sw.logger.Warnw("Failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}

			if !sw.shouldProcessEvent(event) {
				continue
			}

			sw.accumulatedMu.Lock()
			sw.accumulated[event.Name] = true
			sw.accumulatedMu.Unlock()

			sw.resetDebounceTimer(fireCh)

		case <-fireCh:
			sw.pausedMu.RLock()
			paused := sw.paused
			sw.pausedMu.RUnlock()
			if !paused {
				sw.flush()
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warnw("File watcher error", "error", err)
		}
	}
}

// flush hands the accumulated batch to the callback.
func (sw *SourceWatcher) flush() {
	sw.accumulatedMu.Lock()
	if len(sw.accumulated) == 0 {
		sw.accumulatedMu.Unlock()
		return
	}
	files := make([]string, 0, len(sw.accumulated))
	for file := range sw.accumulated {
		files = append(files, file)
	}
	sw.accumulated = make(map[string]bool)
	sw.accumulatedMu.Unlock()

	sort.Strings(files)
	sw.logger.Debugw("Sources changed", "files", len(files))
	if sw.callback != nil {
		sw.callback(files)
	}
}

// resetDebounceTimer restarts the quiet period.
func (sw *SourceWatcher) resetDebounceTimer(fireCh chan struct{}) {
	sw.timerMu.Lock()
	defer sw.timerMu.Unlock()

	if sw.debounceTimer != nil {
		sw.debounceTimer.Stop()
	}
	sw.debounceTimer = time.AfterFunc(sw.debounceTime, func() {
		select {
		case fireCh <- struct{}{}:
		default:
		}
	})
}

func (sw *SourceWatcher) stopDebounceTimer() {
	sw.timerMu.Lock()
	defer sw.timerMu.Unlock()

	if sw.debounceTimer != nil {
		sw.debounceTimer.Stop()
		sw.debounceTimer = nil
	}
}

// shouldProcessEvent keeps writes, creates, removes and renames of watched
// extensions.
func (sw *SourceWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return sw.extensions[filepath.Ext(event.Name)]
}

// addDirectoriesRecursively adds all directories in the tree to the watcher.
func (sw *SourceWatcher) addDirectoriesRecursively(rootPath string) error {
	return filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == rootPath {
				return err
			}
			sw.logger.Warnw("Error accessing path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != rootPath && sw.skipDir(path) {
			return filepath.SkipDir
		}
		if err := sw.watcher.Add(path); err != nil {
			sw.logger.Warnw("Failed to watch directory", "dir", path, "error", err)
		}
		return nil
	})
}
