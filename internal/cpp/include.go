package cpp

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/maypok86/otter"
)

// ErrIncludeNotFound indicates a permitted include that no include directory holds.
var ErrIncludeNotFound = errors.New("include not found")

// Loader resolves an include name against a list of include directories.
type Loader interface {
	Load(name string, dirs []string) (path string, src []byte, err error)
}

// FSLoader reads headers from disk, searching dirs in order.
type FSLoader struct{}

// Load implements Loader.
func (FSLoader) Load(name string, dirs []string) (string, []byte, error) {
	for _, dir := range dirs {
		path := filepath.Join(dir, filepath.FromSlash(name))
		src, err := os.ReadFile(path)
		if err == nil {
			return path, src, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, errors.Wrapf(err, "failed to read %s", path)
		}
	}
	return "", nil, errors.Wrapf(ErrIncludeNotFound, "%s (searched %s)", name, strings.Join(dirs, ", "))
}

type cachedHeader struct {
	path string
	src  []byte
}

// CachedLoader fronts another Loader with a bounded in-memory cache. It is
// safe for concurrent use, so one instance can serve every worker of a run.
type CachedLoader struct {
	next  Loader
	cache otter.Cache[string, cachedHeader]
}

// NewCachedLoader wraps next with a cache holding up to capacity headers.
func NewCachedLoader(next Loader, capacity int) (*CachedLoader, error) {
	if capacity <= 0 {
		return nil, errors.Newf("cache capacity must be positive, got %d", capacity)
	}
	cache, err := otter.MustBuilder[string, cachedHeader](capacity).Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build include cache")
	}
	return &CachedLoader{next: next, cache: cache}, nil
}

// Load implements Loader.
func (c *CachedLoader) Load(name string, dirs []string) (string, []byte, error) {
	key := strings.Join(dirs, "\x00") + "\x00" + name
	if hit, ok := c.cache.Get(key); ok {
		return hit.path, hit.src, nil
	}
	path, src, err := c.next.Load(name, dirs)
	if err != nil {
		return "", nil, err
	}
	c.cache.Set(key, cachedHeader{path: path, src: src})
	return path, src, nil
}

// Purge drops every cached header, e.g. after sources changed on disk.
func (c *CachedLoader) Purge() {
	c.cache.Clear()
}

// Close releases the cache.
func (c *CachedLoader) Close() {
	c.cache.Close()
}
