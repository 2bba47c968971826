package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mvp-joe/stubgen/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// CLIProgressReporter implements pipeline.ProgressReporter with a progress bar.
type CLIProgressReporter struct {
	mu             sync.Mutex
	quiet          bool
	out            io.Writer
	fileBar        *progressbar.ProgressBar
	totalFiles     int
	processedFiles int
	failedFiles    []string
}

// NewCLIProgressReporter creates a new CLI progress reporter writing to out.
func NewCLIProgressReporter(quiet bool, out io.Writer) *CLIProgressReporter {
	return &CLIProgressReporter{
		quiet: quiet,
		out:   out,
	}
}

func (c *CLIProgressReporter) OnDiscoveryStart() {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.out, "Discovering sources...")
}

func (c *CLIProgressReporter) OnDiscoveryComplete(sourceFiles int) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "Processing %s source files\n", formatNumber(sourceFiles))
}

func (c *CLIProgressReporter) OnFileProcessingStart(totalFiles int) {
	c.totalFiles = totalFiles
	c.processedFiles = 0
	c.failedFiles = nil
	if c.quiet {
		return
	}

	c.fileBar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Extracting markers"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

// OnFileProcessed is called concurrently from pipeline workers.
func (c *CLIProgressReporter) OnFileProcessed(fileName string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.processedFiles++
	if err != nil {
		c.failedFiles = append(c.failedFiles, fileName)
	}
	if c.fileBar != nil {
		_ = c.fileBar.Add(1)
	}
}

func (c *CLIProgressReporter) OnComplete(stats *pipeline.Stats) {
	if c.quiet {
		return
	}
	if c.fileBar != nil {
		_ = c.fileBar.Finish()
		c.fileBar = nil
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "✓ Extraction complete (%s): %s symbols from %s markers in %.1fs\n",
		stats.Flavour,
		formatNumber(stats.Symbols),
		formatNumber(stats.Markers),
		stats.Duration.Seconds())
	fmt.Fprintf(c.out, "  Files:  %s\n", formatNumber(stats.Files))
	if stats.Failed > 0 {
		fmt.Fprintf(c.out, "  Failed: %s\n", formatNumber(stats.Failed))
		sort.Strings(c.failedFiles)
		for _, name := range c.failedFiles {
			fmt.Fprintf(c.out, "    %s\n", name)
		}
	}
}

// formatNumber adds thousands separators.
func formatNumber(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
