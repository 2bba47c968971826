package pipeline

import "time"

// ProgressReporter provides callbacks for reporting run progress.
// Implementations can display progress bars, log messages, or remain silent.
// OnFileProcessed may be called from several workers at once.
type ProgressReporter interface {
	// OnDiscoveryStart is called when source discovery begins.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called when source discovery finishes.
	OnDiscoveryComplete(sourceFiles int)

	// OnFileProcessingStart is called before extracting files.
	OnFileProcessingStart(totalFiles int)

	// OnFileProcessed is called after each file is extracted and built.
	OnFileProcessed(fileName string, err error)

	// OnComplete is called when the run has merged every file.
	OnComplete(stats *Stats)
}

// Stats summarises a run.
type Stats struct {
	RunID     string
	Flavour   string
	Files     int
	Failed    int
	Markers   int
	Symbols   int
	Duration  time.Duration
	StartedAt time.Time
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnDiscoveryStart()                          {}
func (n *NoOpProgressReporter) OnDiscoveryComplete(sourceFiles int)        {}
func (n *NoOpProgressReporter) OnFileProcessingStart(totalFiles int)       {}
func (n *NoOpProgressReporter) OnFileProcessed(fileName string, err error) {}
func (n *NoOpProgressReporter) OnComplete(stats *Stats)                    {}
