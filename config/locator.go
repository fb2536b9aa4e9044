package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// ErrNotFound is returned when no liblwgeom could be located.
var ErrNotFound = errors.New("config: liblwgeom not found")

// Locator finds the liblwgeom shared library when no path is configured.
type Locator interface {
	Locate() (string, error)
}

// DirLocator searches Dirs, in order, for a file matching one of Patterns.
type DirLocator struct {
	Dirs     []string
	Patterns []string
}

// DefaultLocator returns a locator over the conventional install locations
// of the current platform.
func DefaultLocator() *DirLocator {
	switch runtime.GOOS {
	case "windows":
		var dirs []string
		for _, env := range []string{"OSGEO4W_ROOT", "ProgramFiles"} {
			if root := os.Getenv(env); root != "" {
				dirs = append(dirs, filepath.Join(root, "bin"), filepath.Join(root, "PostgreSQL"))
			}
		}
		return &DirLocator{Dirs: dirs, Patterns: []string{"liblwgeom*.dll", "lwgeom*.dll"}}
	case "darwin":
		return &DirLocator{
			Dirs:     []string{"/opt/homebrew/lib", "/usr/local/lib", "/Library/Frameworks/GEOS.framework/Versions/Current/unix/lib"},
			Patterns: []string{"liblwgeom*.dylib"},
		}
	default:
		return &DirLocator{
			Dirs: []string{
				"/usr/lib/x86_64-linux-gnu", "/usr/lib/aarch64-linux-gnu",
				"/usr/lib64", "/usr/lib", "/usr/local/lib",
			},
			Patterns: []string{"liblwgeom.so", "liblwgeom-*.so*", "liblwgeom.so.*"},
		}
	}
}

// Locate returns the first match. Within one directory and pattern the
// lexically greatest name wins, which picks the newest versioned soname.
func (l *DirLocator) Locate() (string, error) {
	for _, dir := range l.Dirs {
		for _, pattern := range l.Patterns {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return "", fmt.Errorf("config: bad pattern %q: %w", pattern, err)
			}
			sort.Sort(sort.Reverse(sort.StringSlice(matches)))
			for _, m := range matches {
				if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
					return m, nil
				}
			}
		}
	}
	return "", fmt.Errorf("%w in %v; set lwgeom.path", ErrNotFound, l.Dirs)
}

// LibraryPath returns the configured path, or what loc finds when none is
// configured.
func (c *Config) LibraryPath(loc Locator) (string, error) {
	if c.Lwgeom.Path != "" {
		return c.Lwgeom.Path, nil
	}
	if loc == nil {
		return "", ErrNotFound
	}
	return loc.Locate()
}
