package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/cpp"
	"github.com/mvp-joe/stubgen/internal/discovery"
	"github.com/mvp-joe/stubgen/internal/pipeline"
	"github.com/mvp-joe/stubgen/internal/render"
	"github.com/mvp-joe/stubgen/internal/watcher"
	"github.com/spf13/cobra"
)

var (
	generateOut   string
	generateQuiet bool
	generateWatch bool
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Extract every source file and render the stubs",
	Long: `Generate discovers the configured source files, extracts and merges their
symbols for one flavour, and renders the template directory into the output
directory. Every extracted record must be declared by some template.

Examples:
  # Generate stubs for the configured flavour
  stubgen generate

  # Generate WILLOW stubs into a custom directory
  stubgen generate -f WILLOW --out build/stubs

  # Regenerate whenever a source, header or template changes
  stubgen generate --watch
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		p, err := loadProject(rootDir, flavourFlag, logger)
		if err != nil {
			return err
		}
		return runGenerate(ctx, p, generateOptions{
			outDir: generateOut,
			quiet:  generateQuiet,
			watch:  generateWatch,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "output directory (default is output.dir)")
	generateCmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "Disable progress bars and non-error output")
	generateCmd.Flags().BoolVarP(&generateWatch, "watch", "w", false, "Watch sources and templates and regenerate on change")
}

type generateOptions struct {
	outDir string
	quiet  bool
	watch  bool
}

// generator holds what one generate invocation reuses across rebuilds.
type generator struct {
	project   *project
	loader    *cpp.CachedLoader
	discovery *discovery.SourceDiscovery
	pipeline  *pipeline.Pipeline
	renderer  *render.Renderer
	outDir    string
	quiet     bool
	out       io.Writer
}

func newGenerator(p *project, opts generateOptions, out io.Writer) (*generator, error) {
	d, err := p.newDiscovery()
	if err != nil {
		return nil, err
	}
	x, loader, err := p.newExtractor()
	if err != nil {
		return nil, err
	}
	pl, err := p.newPipeline(x, NewCLIProgressReporter(opts.quiet, out))
	if err != nil {
		loader.Close()
		return nil, err
	}

	outDir := opts.outDir
	if outDir == "" {
		outDir = p.cfg.OutputDir(p.root)
	}
	if outDir, err = filepath.Abs(outDir); err != nil {
		loader.Close()
		return nil, errors.Wrap(err, "failed to resolve output directory")
	}
	return &generator{
		project:   p,
		loader:    loader,
		discovery: d,
		pipeline:  pl,
		renderer:  render.NewDir(p.cfg.TemplateDir(p.root), p.logger),
		outDir:    outDir,
		quiet:     opts.quiet,
		out:       out,
	}, nil
}

func (g *generator) Close() {
	g.loader.Close()
}

// generate runs one full extract and render.
func (g *generator) generate(ctx context.Context) (*render.Report, error) {
	result, err := g.pipeline.RunDiscovery(ctx, g.discovery)
	if err != nil {
		return nil, err
	}

	report, err := g.renderer.Render(g.outDir, render.Input{
		Symbols:   result.Symbols,
		Flavour:   string(result.Flavour),
		Constants: result.Constants,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to render stubs")
	}

	for _, name := range report.Skipped {
		g.project.logger.Debugw("Undocumented module not declared", "module", name)
	}
	if !g.quiet {
		fmt.Fprintf(g.out, "✓ Wrote %s stubs to %s\n", formatNumber(len(report.Outputs)), g.outDir)
	}
	return report, nil
}

func runGenerate(ctx context.Context, p *project, opts generateOptions, out io.Writer) error {
	g, err := newGenerator(p, opts, out)
	if err != nil {
		return err
	}
	defer g.Close()

	if !opts.watch {
		_, err := g.generate(ctx)
		return err
	}

	// In watch mode a broken build is reported and waited out.
	if _, err := g.generate(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.logger.Errorw("Generation failed", "error", err)
	}
	return g.watch(ctx)
}

// Rebuild drops cached headers and regenerates everything.
func (g *generator) Rebuild(ctx context.Context, changed []string) error {
	if len(changed) > 0 {
		g.project.logger.Infow("Sources changed, regenerating", "files", len(changed))
	}
	g.loader.Purge()
	_, err := g.generate(ctx)
	return err
}

// watch regenerates on every debounced batch of changes, and once per
// checkout, until ctx ends.
func (g *generator) watch(ctx context.Context) error {
	sw, err := watcher.New(watcher.Options{
		Dirs:       g.watchDirs(),
		Extensions: g.watchExtensions(),
		SkipDir:    g.skipDir,
		Logger:     g.project.logger,
	})
	if err != nil {
		return errors.Wrap(err, "failed to start watch mode")
	}

	var gw watcher.GitWatcher
	gitDir := filepath.Join(g.project.root, ".git")
	if _, err := os.Stat(filepath.Join(gitDir, "HEAD")); err == nil {
		if gw, err = watcher.NewGitWatcher(gitDir, g.project.logger); err != nil {
			g.project.logger.Warnw("Branch switches will not be detected", "error", err)
			gw = nil
		}
	}

	if !g.quiet {
		fmt.Fprintln(g.out, "Watching for changes (Ctrl+C to stop)...")
	}
	err = watcher.NewWatchCoordinator(gw, sw, g, g.project.logger).Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchDirs lists the source root, include directories and template
// directory that exist, without duplicates or nested repeats.
func (g *generator) watchDirs() []string {
	cfg := g.project.cfg
	candidates := []string{cfg.SourceRoot(g.project.root), cfg.TemplateDir(g.project.root)}
	candidates = append(candidates, cfg.ExtractOptions(g.project.root).IncludeDirs...)

	var dirs []string
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		covered := false
		for _, seen := range dirs {
			if dir == seen || strings.HasPrefix(dir, seen+string(filepath.Separator)) {
				covered = true
				break
			}
		}
		if !covered {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// watchExtensions covers sources, headers and every template extension.
func (g *generator) watchExtensions() []string {
	exts := g.project.cfg.GetSourceExtensions()
	if names, err := g.renderer.Templates(); err == nil {
		for _, name := range names {
			if ext := filepath.Ext(name); ext != "" {
				exts = append(exts, ext)
			}
		}
	}
	return exts
}

// skipDir applies the discovery ignore rules to directories under the source
// root and always skips the output directory.
func (g *generator) skipDir(path string) bool {
	if path == g.outDir {
		return true
	}
	rel, err := filepath.Rel(g.discovery.Root(), path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return g.discovery.ShouldIgnore(filepath.ToSlash(rel))
}
