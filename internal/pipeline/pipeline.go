// Package pipeline runs extraction and symbol building over many source files
// and merges the results into one symbol dict.
//
// Every file gets its own expansion context and builder, so files are
// processed in parallel by a bounded worker pool. Per-file dicts are merged
// afterwards in input order, which keeps the output and any merge conflict
// deterministic regardless of scheduling.
package pipeline

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/mvp-joe/stubgen/internal/builder"
	"github.com/mvp-joe/stubgen/internal/cpp"
	"github.com/mvp-joe/stubgen/internal/discovery"
	"github.com/mvp-joe/stubgen/internal/extract"
	"github.com/mvp-joe/stubgen/internal/info"
	"github.com/mvp-joe/stubgen/internal/sites"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrFilesFailed is returned alongside a partial Result when ContinueOnError
// let the run finish despite failing files.
var ErrFilesFailed = errors.New("one or more files failed")

// Options configures a run.
type Options struct {
	Flavour         extract.Flavour
	Workers         int
	ContinueOnError bool
	MarkerPrefix    string
	Docstring       builder.DocstringPolicy
}

// FileError is the failure of one source file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// FileResult is the outcome for one source file.
type FileResult struct {
	Path    string
	Markers int
	Symbols info.Dict
	Err     error
}

// Result is the merged outcome of a run.
type Result struct {
	RunID     string
	Flavour   extract.Flavour
	Constants map[string]int64
	Symbols   info.Dict
	Files     []FileResult
	Errors    []*FileError
	Stats     *Stats
}

// Pipeline runs the extractor and builder across files.
type Pipeline struct {
	extractor *extract.Extractor
	locator   *sites.Locator
	opts      Options
	progress  ProgressReporter
	logger    *zap.SugaredLogger
}

// New creates a pipeline. A nil progress reporter or logger is replaced by a
// silent one.
func New(extractor *extract.Extractor, opts Options, progress ProgressReporter, logger *zap.SugaredLogger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MarkerPrefix == "" {
		opts.MarkerPrefix = builder.DefaultPrefix
	}
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		extractor: extractor,
		locator:   sites.New(opts.MarkerPrefix),
		opts:      opts,
		progress:  progress,
		logger:    logger,
	}
}

// RunDiscovery discovers source files and runs them.
func (p *Pipeline) RunDiscovery(ctx context.Context, d *discovery.SourceDiscovery) (*Result, error) {
	p.progress.OnDiscoveryStart()
	files, err := d.Discover()
	if err != nil {
		return nil, errors.Wrap(err, "source discovery failed")
	}
	p.progress.OnDiscoveryComplete(len(files))
	return p.Run(ctx, files)
}

// Run extracts and builds every file, then merges the per-file dicts in the
// order given. Without ContinueOnError the first failing file cancels the
// rest and its *FileError is returned. With it, every file is attempted and
// a partial Result is returned together with ErrFilesFailed.
func (p *Pipeline) Run(ctx context.Context, files []string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "flavour", p.opts.Flavour)

	constants, err := p.extractor.ResolveFlavour(ctx, p.opts.Flavour)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve flavour constants")
	}

	logger.Infow("Starting run", "files", len(files), "workers", p.opts.Workers)
	p.progress.OnFileProcessingStart(len(files))

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := p.processFile(gctx, path)
			results[i] = res
			p.progress.OnFileProcessed(path, res.Err)
			if res.Err != nil {
				logger.Debugw("File failed", "file", path, "error", res.Err)
				if !p.opts.ContinueOnError {
					return &FileError{Path: path, Err: res.Err}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     runID,
		Flavour:   p.opts.Flavour,
		Constants: constants,
		Symbols:   make(info.Dict),
		Files:     results,
	}

	markers := 0
	for i := range results {
		res := &results[i]
		markers += res.Markers
		if res.Err == nil {
			if err := info.Merge(result.Symbols, res.Symbols); err != nil {
				res.Err = err
			}
		}
		if res.Err != nil {
			fe := &FileError{Path: res.Path, Err: res.Err}
			if !p.opts.ContinueOnError {
				return nil, fe
			}
			result.Errors = append(result.Errors, fe)
		}
	}

	result.Stats = &Stats{
		RunID:     runID,
		Flavour:   string(p.opts.Flavour),
		Files:     len(files),
		Failed:    len(result.Errors),
		Markers:   markers,
		Symbols:   len(result.Symbols),
		Duration:  time.Since(start),
		StartedAt: start,
	}
	p.progress.OnComplete(result.Stats)
	logger.Infow("Run complete",
		"files", len(files),
		"failed", len(result.Errors),
		"markers", markers,
		"symbols", len(result.Symbols),
		"duration", result.Stats.Duration)

	if len(result.Errors) > 0 {
		return result, errors.Wrapf(ErrFilesFailed, "%d of %d files failed", len(result.Errors), len(files))
	}
	return result, nil
}

// processFile runs both stages for one file with its own builder.
func (p *Pipeline) processFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}

	invs, err := p.extractor.Extract(ctx, path, p.opts.Flavour)
	if err != nil {
		res.Err = err
		return res
	}
	res.Markers = countMarkers(invs, p.opts.MarkerPrefix)

	b := builder.New(
		builder.WithPrefix(p.opts.MarkerPrefix),
		builder.WithDocstringPolicy(p.opts.Docstring),
		builder.WithLogger(p.logger.With("file", path)),
	)
	symbols, err := b.Build(invs)
	if err != nil {
		res.Err = p.withSiteHint(ctx, path, err)
		return res
	}
	res.Symbols = symbols
	return res
}

// withSiteHint attaches the likely source line of a failing marker, found by
// matching the marker name and first argument against the unexpanded source.
func (p *Pipeline) withSiteHint(ctx context.Context, path string, err error) error {
	var me *builder.MarkerError
	if !errors.As(err, &me) {
		return err
	}
	found, scanErr := p.locator.ScanFile(ctx, path)
	if scanErr != nil {
		p.logger.Debugw("Marker site scan failed", "file", path, "error", scanErr)
		return err
	}

	first := ""
	if len(me.Invocation.Args) > 0 {
		first = cpp.Text(me.Invocation.Args[0])
	}
	matches := sites.Find(found, me.Invocation.Macro, first)
	if len(matches) == 0 {
		matches = sites.Find(found, me.Invocation.Macro, "")
	}
	switch len(matches) {
	case 0:
		return err
	case 1:
		return errors.WithHintf(err, "likely at %s:%d", path, matches[0].Line)
	default:
		lines := make([]int, len(matches))
		for i, m := range matches {
			lines[i] = m.Line
		}
		return errors.WithHintf(err, "one of %s lines %v", path, lines)
	}
}

func countMarkers(invs []cpp.Invocation, prefix string) int {
	n := 0
	for _, inv := range invs {
		if strings.HasPrefix(inv.Macro, prefix) {
			n++
		}
	}
	return n
}
