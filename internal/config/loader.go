package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// DirName is the per-project configuration directory.
const DirName = ".stubgen"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (STUBGEN_*)
// 2. Config file (.stubgen/config.yml or .stubgen/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, DirName))

	// STUBGEN_RUN_WORKERS maps to run.workers
	v.SetEnvPrefix("STUBGEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only covers keys viper already knows about when
	// unmarshalling, so bind the scalar ones explicitly.
	for _, key := range []string{
		"flavour",
		"source.root",
		"source.config_header",
		"source.marker_header",
		"source.flavour_macro",
		"source.flavour_prefix",
		"source.constant_prefix",
		"source.marker_prefix",
		"paths.use_gitignore",
		"docstring.require_trailing_newline",
		"docstring.max_line_width",
		"output.dir",
		"output.templates",
		"run.workers",
		"run.continue_on_error",
		"cache.capacity",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("flavour", defaults.Flavour)
	v.SetDefault("flavours", defaults.Flavours)

	v.SetDefault("source.root", defaults.Source.Root)
	v.SetDefault("source.include_dirs", defaults.Source.IncludeDirs)
	v.SetDefault("source.config_header", defaults.Source.ConfigHeader)
	v.SetDefault("source.marker_header", defaults.Source.MarkerHeader)
	v.SetDefault("source.flavour_macro", defaults.Source.FlavourMacro)
	v.SetDefault("source.flavour_prefix", defaults.Source.FlavourPrefix)
	v.SetDefault("source.constant_prefix", defaults.Source.ConstantPrefix)
	v.SetDefault("source.marker_prefix", defaults.Source.MarkerPrefix)
	v.SetDefault("source.predefines", defaults.Source.Predefines)

	v.SetDefault("paths.sources", defaults.Paths.Sources)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)
	v.SetDefault("paths.use_gitignore", defaults.Paths.UseGitignore)

	v.SetDefault("docstring.require_trailing_newline", defaults.Docstring.RequireTrailingNewline)
	v.SetDefault("docstring.max_line_width", defaults.Docstring.MaxLineWidth)

	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.templates", defaults.Output.Templates)

	v.SetDefault("run.workers", defaults.Run.Workers)
	v.SetDefault("run.continue_on_error", defaults.Run.ContinueOnError)

	v.SetDefault("cache.capacity", defaults.Cache.Capacity)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get working directory")
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
