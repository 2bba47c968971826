// Package config loads stubgen project configuration.
//
// Configuration is read from .stubgen/config.yml under the project root, with
// STUBGEN_* environment variables taking precedence and built-in defaults
// filling the gaps. Nested keys map to environment variables with dots
// replaced by underscores, e.g. STUBGEN_RUN_WORKERS.
package config

import (
	"path/filepath"

	"github.com/mvp-joe/stubgen/internal/builder"
	"github.com/mvp-joe/stubgen/internal/extract"
)

// Config represents the complete stubgen configuration.
type Config struct {
	Flavour   string          `yaml:"flavour" mapstructure:"flavour"`
	Flavours  []string        `yaml:"flavours" mapstructure:"flavours"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Docstring DocstringConfig `yaml:"docstring" mapstructure:"docstring"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
}

// SourceConfig describes the native source tree and its headers.
type SourceConfig struct {
	Root           string   `yaml:"root" mapstructure:"root"`                       // relative to the project root
	IncludeDirs    []string `yaml:"include_dirs" mapstructure:"include_dirs"`       // relative to source.root
	ConfigHeader   string   `yaml:"config_header" mapstructure:"config_header"`     // e.g. "unrealsdk/flavour.h"
	MarkerHeader   string   `yaml:"marker_header" mapstructure:"marker_header"`     // e.g. "pyunrealsdk/stubgen.h"
	FlavourMacro   string   `yaml:"flavour_macro" mapstructure:"flavour_macro"`     // e.g. "UNREALSDK_FLAVOUR"
	FlavourPrefix  string   `yaml:"flavour_prefix" mapstructure:"flavour_prefix"`   // e.g. "UNREALSDK_FLAVOUR_"
	ConstantPrefix string   `yaml:"constant_prefix" mapstructure:"constant_prefix"` // e.g. "UNREALSDK_"
	MarkerPrefix   string   `yaml:"marker_prefix" mapstructure:"marker_prefix"`     // e.g. "PYUNREALSDK_STUBGEN_"
	Predefines     []string `yaml:"predefines" mapstructure:"predefines"`           // "NAME body" definitions
}

// PathsConfig defines which source files to process and which to ignore.
type PathsConfig struct {
	Sources      []string `yaml:"sources" mapstructure:"sources"`             // glob patterns relative to source.root
	Ignore       []string `yaml:"ignore" mapstructure:"ignore"`               // glob patterns to skip
	UseGitignore bool     `yaml:"use_gitignore" mapstructure:"use_gitignore"` // also honour source.root/.gitignore
}

// DocstringConfig mirrors builder.DocstringPolicy.
type DocstringConfig struct {
	RequireTrailingNewline bool `yaml:"require_trailing_newline" mapstructure:"require_trailing_newline"`
	MaxLineWidth           int  `yaml:"max_line_width" mapstructure:"max_line_width"`
}

// OutputConfig defines where stubs are rendered.
type OutputConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Templates string `yaml:"templates" mapstructure:"templates"`
}

// RunConfig tunes the extraction pipeline.
type RunConfig struct {
	Workers         int  `yaml:"workers" mapstructure:"workers"` // 0 means one per CPU
	ContinueOnError bool `yaml:"continue_on_error" mapstructure:"continue_on_error"`
}

// CacheConfig sizes the parsed-header cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity" mapstructure:"capacity"` // number of headers
}

// Default returns a configuration for the unrealsdk/pyunrealsdk layout.
func Default() *Config {
	x := extract.DefaultOptions()
	flavours := make([]string, 0, len(x.Flavours))
	for _, f := range x.Flavours {
		flavours = append(flavours, string(f))
	}
	doc := builder.DefaultDocstringPolicy()

	return &Config{
		Flavour:  string(extract.Oak),
		Flavours: flavours,
		Source: SourceConfig{
			Root:           ".",
			IncludeDirs:    []string{"src", "libs/unrealsdk/src"},
			ConfigHeader:   x.ConfigHeader,
			MarkerHeader:   x.MarkerHeader,
			FlavourMacro:   x.FlavourMacro,
			FlavourPrefix:  x.FlavourPrefix,
			ConstantPrefix: x.ConstantPrefix,
			MarkerPrefix:   builder.DefaultPrefix,
			Predefines:     x.Predefines,
		},
		Paths: PathsConfig{
			Sources: []string{
				"**/*.cpp",
			},
			Ignore: []string{
				".git/**",
				"build/**",
				"out/**",
				"libs/**",
			},
			UseGitignore: true,
		},
		Docstring: DocstringConfig{
			RequireTrailingNewline: doc.RequireTrailingNewline,
			MaxLineWidth:           doc.MaxLineWidth,
		},
		Output: OutputConfig{
			Dir:       "stubs",
			Templates: "stubgen/templates",
		},
		Run: RunConfig{
			Workers:         0,
			ContinueOnError: false,
		},
		Cache: CacheConfig{
			Capacity: 256,
		},
	}
}

// SourceRoot resolves source.root against projectRoot.
func (c *Config) SourceRoot(projectRoot string) string {
	return resolve(projectRoot, c.Source.Root)
}

// ExtractOptions converts the source section into extractor options.
// Include directories are resolved against the source root.
func (c *Config) ExtractOptions(projectRoot string) extract.Options {
	root := c.SourceRoot(projectRoot)
	dirs := make([]string, 0, len(c.Source.IncludeDirs))
	for _, dir := range c.Source.IncludeDirs {
		dirs = append(dirs, resolve(root, dir))
	}

	return extract.Options{
		IncludeDirs:    dirs,
		ConfigHeader:   c.Source.ConfigHeader,
		MarkerHeader:   c.Source.MarkerHeader,
		FlavourMacro:   c.Source.FlavourMacro,
		FlavourPrefix:  c.Source.FlavourPrefix,
		ConstantPrefix: c.Source.ConstantPrefix,
		Predefines:     append([]string(nil), c.Source.Predefines...),
		Flavours:       c.KnownFlavours(),
	}
}

// DocstringPolicy converts the docstring section.
func (c *Config) DocstringPolicy() builder.DocstringPolicy {
	return builder.DocstringPolicy{
		RequireTrailingNewline: c.Docstring.RequireTrailingNewline,
		MaxLineWidth:           c.Docstring.MaxLineWidth,
	}
}

// KnownFlavours returns the configured flavour list.
func (c *Config) KnownFlavours() []extract.Flavour {
	out := make([]extract.Flavour, 0, len(c.Flavours))
	for _, f := range c.Flavours {
		out = append(out, extract.Flavour(f))
	}
	return out
}

// OutputDir resolves output.dir against projectRoot.
func (c *Config) OutputDir(projectRoot string) string {
	return resolve(projectRoot, c.Output.Dir)
}

// TemplateDir resolves output.templates against projectRoot.
func (c *Config) TemplateDir(projectRoot string) string {
	return resolve(projectRoot, c.Output.Templates)
}

// GetSourceExtensions extracts unique file extensions from the source
// patterns, plus the header extensions that includes pull in.
// Returns extensions with leading dot (e.g., []string{".cpp", ".h"}).
func (c *Config) GetSourceExtensions() []string {
	extMap := map[string]bool{".h": true, ".hpp": true}
	for _, pattern := range c.Paths.Sources {
		if ext := extractExtension(pattern); ext != "" {
			extMap[ext] = true
		}
	}

	extensions := make([]string, 0, len(extMap))
	for ext := range extMap {
		extensions = append(extensions, ext)
	}
	return extensions
}

// extractExtension extracts the file extension from a glob pattern.
// Returns empty string if pattern doesn't match a simple extension pattern.
// Examples: "**/*.cpp" -> ".cpp", "*.h" -> ".h"
func extractExtension(pattern string) string {
	for i := len(pattern) - 1; i >= 1; i-- {
		if pattern[i] == '.' && pattern[i-1] == '*' {
			return pattern[i:]
		}
	}
	return ""
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
