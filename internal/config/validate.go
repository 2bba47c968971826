package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/glob"
	"github.com/mvp-joe/stubgen/internal/extract"
)

var (
	// ErrInvalidFlavour indicates a selected flavour that is not in the flavour list
	ErrInvalidFlavour = errors.New("invalid flavour")

	// ErrEmptyFlavours indicates an empty flavour list
	ErrEmptyFlavours = errors.New("empty flavour list")

	// ErrEmptyHeader indicates a missing config or marker header
	ErrEmptyHeader = errors.New("empty header path")

	// ErrEmptyMacro indicates a missing flavour macro or prefix
	ErrEmptyMacro = errors.New("empty macro name")

	// ErrEmptyPaths indicates no source patterns
	ErrEmptyPaths = errors.New("empty source paths")

	// ErrInvalidPattern indicates a glob that does not compile
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidDocstring indicates invalid docstring settings
	ErrInvalidDocstring = errors.New("invalid docstring settings")

	// ErrEmptyOutput indicates a missing output or template directory
	ErrEmptyOutput = errors.New("empty output settings")

	// ErrInvalidRunSettings indicates invalid worker settings
	ErrInvalidRunSettings = errors.New("invalid run settings")

	// ErrInvalidCacheSettings indicates invalid cache configuration
	ErrInvalidCacheSettings = errors.New("invalid cache settings")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateFlavour(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateSource(&cfg.Source); err != nil {
		errs = append(errs, err)
	}
	if err := validatePaths(&cfg.Paths); err != nil {
		errs = append(errs, err)
	}
	if err := validateDocstring(&cfg.Docstring); err != nil {
		errs = append(errs, err)
	}
	if err := validateOutput(&cfg.Output); err != nil {
		errs = append(errs, err)
	}
	if err := validateRun(&cfg.Run, &cfg.Cache); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func validateFlavour(cfg *Config) error {
	if len(cfg.Flavours) == 0 {
		return errors.Wrap(ErrEmptyFlavours, "at least one flavour is required")
	}
	if _, err := extract.ParseFlavour(cfg.Flavour, cfg.KnownFlavours()); err != nil {
		return errors.Wrapf(ErrInvalidFlavour, "%q is not one of %s", cfg.Flavour, strings.Join(cfg.Flavours, ", "))
	}
	return nil
}

func validateSource(cfg *SourceConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.ConfigHeader) == "" {
		errs = append(errs, errors.Wrap(ErrEmptyHeader, "config_header is required"))
	}
	if strings.TrimSpace(cfg.MarkerHeader) == "" {
		errs = append(errs, errors.Wrap(ErrEmptyHeader, "marker_header is required"))
	}
	if strings.TrimSpace(cfg.FlavourMacro) == "" {
		errs = append(errs, errors.Wrap(ErrEmptyMacro, "flavour_macro is required"))
	}
	if strings.TrimSpace(cfg.FlavourPrefix) == "" {
		errs = append(errs, errors.Wrap(ErrEmptyMacro, "flavour_prefix is required"))
	}
	if strings.TrimSpace(cfg.MarkerPrefix) == "" {
		errs = append(errs, errors.Wrap(ErrEmptyMacro, "marker_prefix is required"))
	}

	return joinErrors(errs)
}

func validatePaths(cfg *PathsConfig) error {
	var errs []error

	if len(cfg.Sources) == 0 {
		errs = append(errs, errors.Wrap(ErrEmptyPaths, "at least one source pattern is required"))
	}
	for _, p := range append(append([]string(nil), cfg.Sources...), cfg.Ignore...) {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, errors.Wrapf(ErrInvalidPattern, "%q: %v", p, err))
		}
	}

	return joinErrors(errs)
}

func validateDocstring(cfg *DocstringConfig) error {
	if cfg.MaxLineWidth < 0 {
		return errors.Wrapf(ErrInvalidDocstring, "max_line_width cannot be negative, got %d", cfg.MaxLineWidth)
	}
	return nil
}

func validateOutput(cfg *OutputConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.Dir) == "" {
		errs = append(errs, errors.Wrap(ErrEmptyOutput, "output.dir is required"))
	}
	if strings.TrimSpace(cfg.Templates) == "" {
		errs = append(errs, errors.Wrap(ErrEmptyOutput, "output.templates is required"))
	}

	return joinErrors(errs)
}

func validateRun(run *RunConfig, cache *CacheConfig) error {
	var errs []error

	// Zero means one worker per CPU.
	if run.Workers < 0 {
		errs = append(errs, errors.Wrapf(ErrInvalidRunSettings, "workers cannot be negative, got %d", run.Workers))
	}
	if cache.Capacity <= 0 {
		errs = append(errs, errors.Wrapf(ErrInvalidCacheSettings, "capacity must be positive, got %d", cache.Capacity))
	}

	return joinErrors(errs)
}

// joinErrors combines multiple errors into a single error with clear
// formatting. Every input stays reachable through errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return errors.WithMessagef(errors.Join(errs...), "validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
