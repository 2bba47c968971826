// Package extract isolates annotation marker invocations from native source
// files for one flavour, and resolves the flavour constants the renderer
// exposes to templates.
package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/cpp"
	"go.uber.org/zap"
)

// Options describes where the config and marker headers live and how the
// flavour switch is spelled.
type Options struct {
	IncludeDirs    []string
	ConfigHeader   string
	MarkerHeader   string
	FlavourMacro   string
	FlavourPrefix  string
	ConstantPrefix string
	Predefines     []string
	Flavours       []Flavour
}

// DefaultOptions returns the layout of the unrealsdk/pyunrealsdk sources.
func DefaultOptions() Options {
	return Options{
		ConfigHeader:   "unrealsdk/flavour.h",
		MarkerHeader:   "pyunrealsdk/stubgen.h",
		FlavourMacro:   "UNREALSDK_FLAVOUR",
		FlavourPrefix:  "UNREALSDK_FLAVOUR_",
		ConstantPrefix: "UNREALSDK_",
		Predefines:     []string{"false 0", "true 1"},
		Flavours:       append([]Flavour(nil), DefaultFlavours...),
	}
}

// Extractor runs the expansion passes. It holds no per-file state and is
// safe for concurrent use when its loader is.
type Extractor struct {
	opts   Options
	loader cpp.Loader
	logger *zap.SugaredLogger
}

// New creates an Extractor. A nil loader reads headers from disk, a nil
// logger discards output.
func New(opts Options, loader cpp.Loader, logger *zap.SugaredLogger) *Extractor {
	if loader == nil {
		loader = cpp.FSLoader{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Extractor{opts: opts, loader: loader, logger: logger}
}

// Options returns the extractor's configuration.
func (e *Extractor) Options() Options {
	return e.opts
}

// Extract reads path and returns the marker invocations it contains for
// flavour, in encounter order.
func (e *Extractor) Extract(ctx context.Context, path string, flavour Flavour) ([]cpp.Invocation, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return e.ExtractSource(ctx, path, src, flavour)
}

// ExtractSource is Extract for in-memory source.
//
// The config header is expanded first to seed the flavour constants. The
// source is then expanded with no includes permitted, which resolves the
// flavour guards while the markers, still undefined, pass through verbatim.
// Finally that output is expanded again with only the marker header
// permitted, and every call seen during this last pass is returned.
func (e *Extractor) ExtractSource(ctx context.Context, name string, src []byte, flavour Flavour) ([]cpp.Invocation, error) {
	pp, err := e.configure(ctx, flavour)
	if err != nil {
		return nil, err
	}

	pp.RestrictIncludes()
	resolved, _, err := pp.Expand(name, src)
	if err != nil {
		return nil, errors.Wrap(err, "flavour pass failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pp.ResetEvents()
	pp.RestrictIncludes(e.opts.MarkerHeader)
	_, invs, err := pp.Expand(name, []byte(resolved))
	if err != nil {
		return nil, errors.Wrap(err, "marker pass failed")
	}

	e.logger.Debugw("Extracted marker invocations",
		"file", name,
		"flavour", flavour,
		"count", len(invs))
	return invs, nil
}

// configure creates a context holding the config header's definitions for
// flavour.
func (e *Extractor) configure(ctx context.Context, flavour Flavour) (*cpp.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseFlavour(string(flavour), e.opts.Flavours); err != nil {
		return nil, err
	}

	pp := cpp.New(
		cpp.WithIncludeDirs(e.opts.IncludeDirs...),
		cpp.WithLoader(e.loader),
		cpp.WithLogger(e.logger),
	)
	for _, def := range e.opts.Predefines {
		if err := pp.Define(def); err != nil {
			return nil, errors.Wrapf(err, "invalid predefine %q", def)
		}
	}
	if err := pp.Define(fmt.Sprintf("%s %s%s", e.opts.FlavourMacro, e.opts.FlavourPrefix, flavour)); err != nil {
		return nil, errors.Wrap(err, "invalid flavour macro")
	}

	pp.RestrictIncludes(e.opts.ConfigHeader)
	if _, _, err := pp.Expand("<config>", []byte(fmt.Sprintf("#include \"%s\"\n", e.opts.ConfigHeader))); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config header %s", e.opts.ConfigHeader)
	}

	if _, err := pp.EvalInt(cpp.Lex([]byte(e.opts.FlavourMacro))); err != nil {
		return nil, errors.WithHintf(
			errors.Wrapf(ErrUnknownFlavour, "%s does not resolve %s%s", e.opts.ConfigHeader, e.opts.FlavourPrefix, flavour),
			"check that %s defines every configured flavour", e.opts.ConfigHeader)
	}
	return pp, nil
}
