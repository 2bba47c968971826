package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/config"
	"github.com/mvp-joe/stubgen/internal/cpp"
	"github.com/mvp-joe/stubgen/internal/discovery"
	"github.com/mvp-joe/stubgen/internal/extract"
	"github.com/mvp-joe/stubgen/internal/pipeline"
	"go.uber.org/zap"
)

// project is a loaded configuration bound to its root directory.
type project struct {
	root   string
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// loadProject loads the configuration under root, or the working directory
// when root is empty. A non-empty flavour overrides the configured one.
func loadProject(root, flavour string, logger *zap.SugaredLogger) (*project, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get working directory")
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", root)
	}

	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if flavour != "" {
		cfg.Flavour = flavour
		if err := config.Validate(cfg); err != nil {
			return nil, errors.Wrap(err, "invalid --flavour")
		}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &project{root: root, cfg: cfg, logger: logger}, nil
}

// flavour returns the selected flavour in canonical form.
func (p *project) flavour() (extract.Flavour, error) {
	return extract.ParseFlavour(p.cfg.Flavour, p.cfg.KnownFlavours())
}

// newExtractor builds an extractor over a fresh header cache. The caller
// closes the returned loader.
func (p *project) newExtractor() (*extract.Extractor, *cpp.CachedLoader, error) {
	loader, err := cpp.NewCachedLoader(cpp.FSLoader{}, p.cfg.Cache.Capacity)
	if err != nil {
		return nil, nil, err
	}
	return extract.New(p.cfg.ExtractOptions(p.root), loader, p.logger), loader, nil
}

// newPipeline builds a pipeline for the selected flavour.
func (p *project) newPipeline(x *extract.Extractor, progress pipeline.ProgressReporter) (*pipeline.Pipeline, error) {
	flavour, err := p.flavour()
	if err != nil {
		return nil, err
	}
	return pipeline.New(x, pipeline.Options{
		Flavour:         flavour,
		Workers:         p.cfg.Run.Workers,
		ContinueOnError: p.cfg.Run.ContinueOnError,
		MarkerPrefix:    p.cfg.Source.MarkerPrefix,
		Docstring:       p.cfg.DocstringPolicy(),
	}, progress, p.logger), nil
}

// newDiscovery builds source discovery over the source root.
func (p *project) newDiscovery() (*discovery.SourceDiscovery, error) {
	var opts []discovery.Option
	if p.cfg.Paths.UseGitignore {
		opts = append(opts, discovery.WithGitignore())
	}
	return discovery.New(p.cfg.SourceRoot(p.root), p.cfg.Paths.Sources, p.cfg.Paths.Ignore, opts...)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
