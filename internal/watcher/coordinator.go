package watcher

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// WatchCoordinator routes source changes and checkouts to a Rebuilder.
// Rebuilds never overlap.
type WatchCoordinator struct {
	git       GitWatcher
	files     FileWatcher
	rebuilder Rebuilder
	logger    *zap.SugaredLogger

	ctx       context.Context
	rebuildMu sync.Mutex
}

// NewWatchCoordinator creates a coordinator. git may be nil when the
// project is not a git checkout.
func NewWatchCoordinator(git GitWatcher, files FileWatcher, rebuilder Rebuilder, logger *zap.SugaredLogger) *WatchCoordinator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WatchCoordinator{
		git:       git,
		files:     files,
		rebuilder: rebuilder,
		logger:    logger,
	}
}

// Start starts both watchers and blocks until ctx is cancelled, then stops
// them and returns ctx's error.
func (c *WatchCoordinator) Start(ctx context.Context) error {
	c.ctx = ctx

	if err := c.files.Start(ctx, c.handleFileChange); err != nil {
		c.cleanup()
		return errors.Wrap(err, "failed to start file watcher")
	}
	if c.git != nil {
		if err := c.git.Start(ctx, c.handleBranchSwitch); err != nil {
			c.cleanup()
			return errors.Wrap(err, "failed to start git watcher")
		}
	}

	<-ctx.Done()
	c.cleanup()
	return ctx.Err()
}

// cleanup stops both watchers.
func (c *WatchCoordinator) cleanup() {
	if c.git != nil {
		if err := c.git.Stop(); err != nil {
			c.logger.Warnw("Git watcher stop failed", "error", err)
		}
	}
	if err := c.files.Stop(); err != nil {
		c.logger.Warnw("File watcher stop failed", "error", err)
	}
}

// handleBranchSwitch holds source events back while the checkout settles
// and rebuilds everything once.
func (c *WatchCoordinator) handleBranchSwitch(oldBranch, newBranch string) {
	c.logger.Infow("Branch switch detected", "from", oldBranch, "to", newBranch)

	c.files.Pause()
	defer c.files.Resume()

	c.rebuild(nil)
}

// handleFileChange rebuilds for a batch of changed files.
func (c *WatchCoordinator) handleFileChange(files []string) {
	if len(files) == 0 {
		return
	}
	c.logger.Infow("Processing file changes", "files", len(files))
	c.rebuild(files)
}

func (c *WatchCoordinator) rebuild(changed []string) {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	if err := c.rebuilder.Rebuild(c.ctx, changed); err != nil {
		c.logger.Errorw("Rebuild failed", "error", err)
	}
}
