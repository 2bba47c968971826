package watcher

import "context"

// FileWatcher monitors source files for changes with debouncing and pause/resume support.
type FileWatcher interface {
	// Start begins watching source directories, calling callback with debounced file changes.
	Start(ctx context.Context, callback func(files []string)) error

	// Stop stops the file watcher and cleans up resources.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks. If events accumulated during pause, fires immediately.
	Resume()
}

// GitWatcher reports checkouts that move HEAD to another branch.
type GitWatcher interface {
	// Start begins watching, calling callback with the old and new branch.
	Start(ctx context.Context, callback func(oldBranch, newBranch string)) error

	// Stop stops the watcher and cleans up resources.
	Stop() error
}

// Rebuilder regenerates output after a change.
type Rebuilder interface {
	// Rebuild regenerates everything. changed lists the files that triggered
	// it; it is empty after a checkout.
	Rebuild(ctx context.Context, changed []string) error
}
