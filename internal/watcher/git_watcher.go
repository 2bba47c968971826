package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// headWatcher is the concrete implementation of GitWatcher.
type headWatcher struct {
	gitDir     string
	headPath   string
	watcher    *fsnotify.Watcher
	logger     *zap.SugaredLogger
	lastBranch string
	stopCh     chan struct{}
	doneCh     chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
	mu         sync.RWMutex // Protects lastBranch
}

// NewGitWatcher creates a GitWatcher for the given .git directory. It fails
// if HEAD cannot be read.
func NewGitWatcher(gitDir string, logger *zap.SugaredLogger) (GitWatcher, error) {
	headPath := filepath.Join(gitDir, "HEAD")
	if _, err := os.Stat(headPath); err != nil {
		return nil, errors.Wrap(err, "cannot access .git/HEAD")
	}

	initialBranch, err := readBranch(headPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read initial branch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &headWatcher{
		gitDir:     gitDir,
		headPath:   headPath,
		watcher:    watcher,
		logger:     logger,
		lastBranch: initialBranch,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins monitoring HEAD. The callback runs on the watch goroutine.
func (gw *headWatcher) Start(ctx context.Context, callback func(oldBranch, newBranch string)) error {
	// Watch the directory so a HEAD replaced by rename is still seen.
	if err := gw.watcher.Add(gw.gitDir); err != nil {
		return errors.Wrap(err, "failed to watch .git directory")
	}

	gw.startOnce.Do(func() {
		go gw.watch(ctx, callback)
	})
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (gw *headWatcher) Stop() error {
	var err error
	gw.stopOnce.Do(func() {
		close(gw.stopCh)
		started := true
		gw.startOnce.Do(func() { started = false })
		if started {
			<-gw.doneCh
		}
		err = gw.watcher.Close()
	})
	return err
}

// watch is the main event loop.
func (gw *headWatcher) watch(ctx context.Context, callback func(oldBranch, newBranch string)) {
	defer close(gw.doneCh)

	for {
		select {
		case <-ctx.Done():
			return

		case <-gw.stopCh:
			return

		case event, ok := <-gw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != gw.headPath {
				continue
			}
			// A removed HEAD is about to be recreated.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			newBranch, err := readBranch(gw.headPath)
			if err != nil {
				gw.logger.Warnw("Failed to read .git/HEAD", "error", err)
				continue
			}
			if newBranch == "" {
				continue // mid-write
			}

			gw.mu.Lock()
			oldBranch := gw.lastBranch
			gw.lastBranch = newBranch
			gw.mu.Unlock()

			if newBranch != oldBranch {
				gw.fire(callback, oldBranch, newBranch)
			}

		case err, ok := <-gw.watcher.Errors:
			if !ok {
				return
			}
			gw.logger.Warnw("Git watcher error", "error", err)
		}
	}
}

// fire runs the callback, surviving a panic in it.
func (gw *headWatcher) fire(callback func(oldBranch, newBranch string), oldBranch, newBranch string) {
	defer func() {
		if r := recover(); r != nil {
			gw.logger.Errorw("Git watcher callback panic", "panic", r)
		}
	}()
	callback(oldBranch, newBranch)
}

// readBranch reads and parses the current branch from .git/HEAD.
func readBranch(headPath string) (string, error) {
	content, err := os.ReadFile(headPath)
	if err != nil {
		return "", err
	}
	return parseBranch(content), nil
}

// parseBranch parses branch name from HEAD file content.
// Returns branch name, or "detached" for detached HEAD.
func parseBranch(content []byte) string {
	line := strings.TrimSpace(string(content))

	if strings.HasPrefix(line, "ref: refs/heads/") {
		return strings.TrimSpace(strings.TrimPrefix(line, "ref: refs/heads/"))
	}

	// A 40 or 64 character hex string is a detached HEAD.
	if (len(line) == 40 || len(line) == 64) && isHexString(line) {
		return "detached"
	}

	return line
}

// isHexString checks if a string contains only hexadecimal characters.
func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
