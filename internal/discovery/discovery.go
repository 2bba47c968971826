// Package discovery finds the native source files that carry stub markers.
package discovery

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// ErrInvalidPattern indicates a glob that failed to compile.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// SourceDiscovery walks a source root for files matching include globs and
// not matching ignore globs. Patterns are matched against slash separated
// paths relative to the root.
type SourceDiscovery struct {
	rootDir        string
	sourcePatterns []compiledPattern
	ignorePatterns []compiledPattern
	gitignore      *ignore.GitIgnore
}

// Option configures a SourceDiscovery.
type Option func(*SourceDiscovery)

// WithGitignore also skips paths matched by the root's .gitignore, if it has
// one.
func WithGitignore() Option {
	return func(d *SourceDiscovery) {
		gi, err := ignore.CompileIgnoreFile(filepath.Join(d.rootDir, ".gitignore"))
		if err == nil {
			d.gitignore = gi
		}
	}
}

// New compiles the patterns for rootDir.
func New(rootDir string, sourcePatterns, ignorePatterns []string, opts ...Option) (*SourceDiscovery, error) {
	sources, err := compileAll(sourcePatterns)
	if err != nil {
		return nil, err
	}
	ignores, err := compileAll(ignorePatterns)
	if err != nil {
		return nil, err
	}
	d := &SourceDiscovery{
		rootDir:        rootDir,
		sourcePatterns: sources,
		ignorePatterns: ignores,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func compileAll(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidPattern, "%q: %v", pattern, err)
		}
		out = append(out, compiledPattern{pattern: pattern, glob: g})
	}
	return out, nil
}

// Root returns the directory being walked.
func (d *SourceDiscovery) Root() string {
	return d.rootDir
}

// Discover walks the tree and returns matching files sorted by path.
func (d *SourceDiscovery) Discover() ([]string, error) {
	var files []string

	err := filepath.WalkDir(d.rootDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(d.rootDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if entry.IsDir() {
			if relPath != "." && d.ShouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Matches(relPath) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", d.rootDir)
	}

	sort.Strings(files)
	return files, nil
}

// Matches reports whether a root-relative path is a source file that is not
// ignored.
func (d *SourceDiscovery) Matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	return !d.ShouldIgnore(relPath) && matchesAnyPattern(relPath, d.sourcePatterns)
}

// ShouldIgnore checks if a root-relative path matches any ignore pattern.
func (d *SourceDiscovery) ShouldIgnore(relPath string) bool {
	// Always ignore the tool's own directory
	if strings.HasPrefix(relPath, ".stubgen/") || relPath == ".stubgen" {
		return true
	}

	if matchesAnyPattern(relPath, d.ignorePatterns) {
		return true
	}
	if d.gitignore != nil && d.gitignore.MatchesPath(relPath) {
		return true
	}

	// A directory like "build" should match the pattern "build/**"
	return matchesAnyPattern(relPath+"/**", d.ignorePatterns)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// Files in the root have no slash, so "**/*.cpp" is retried as "*.cpp".
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if !strings.HasPrefix(cp.pattern, "**/") {
				continue
			}
			simplified := strings.TrimPrefix(cp.pattern, "**/")
			if g, err := glob.Compile(simplified, '/'); err == nil && g.Match(path) {
				return true
			}
		}
	}

	return false
}
