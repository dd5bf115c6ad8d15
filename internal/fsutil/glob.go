package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Expand resolves glob patterns (doublestar syntax, slash separated) against
// root and returns the matching regular files as sorted, de-duplicated paths
// relative to root. A missing root yields an empty set.
func Expand(root string, patterns ...string) ([]string, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Match reports whether the slash separated rel path matches any pattern.
func Match(rel string, patterns ...string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// StaticBase returns the longest leading directory of pattern that holds no
// glob metacharacters ("." when the pattern starts with one).
func StaticBase(pattern string) string {
	base, _ := doublestar.SplitPattern(pattern)
	if base == "" {
		return "."
	}
	return base
}

// Overlaps reports whether two slash separated paths refer to the same file
// or one is a directory ancestor of the other.
func Overlaps(a, b string) bool {
	a, b = path.Clean(a), path.Clean(b)
	if a == b || a == "." || b == "." {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
