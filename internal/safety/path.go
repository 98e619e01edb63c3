package safety

import (
	"os"
	"path/filepath"
	"strings"
)

// withinRoot reports whether candidate, resolved to an absolute path, is
// contained by root. A relative candidate is resolved against the current
// working directory before comparison.
func withinRoot(candidate, root string) (bool, error) {
	root = filepath.Clean(root)
	if !filepath.IsAbs(root) {
		return false, nil
	}

	abs := candidate
	if !filepath.IsAbs(abs) {
		cwd, err := os.Getwd()
		if err != nil {
			return false, err
		}
		abs = filepath.Join(cwd, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false, err
	}
	rel = filepath.Clean(rel)
	if rel == "" || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false, nil
	}
	if filepath.IsAbs(rel) {
		return false, nil
	}
	return true, nil
}

// withinAnyRoot reports whether candidate is contained by at least one of roots.
func withinAnyRoot(candidate string, roots []string) bool {
	for _, root := range roots {
		ok, err := withinRoot(candidate, root)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// allPathsContained reports whether every path in paths is contained by at
// least one root in roots.
func allPathsContained(paths []string, roots []string) bool {
	if len(roots) == 0 {
		return len(paths) == 0
	}
	for _, p := range paths {
		if !withinAnyRoot(p, roots) {
			return false
		}
	}
	return true
}
