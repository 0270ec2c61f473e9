package docpath

import (
	"path/filepath"
	"strings"
)

// InDir resolves path against dir when relative and returns its absolute
// form if it lies inside dir. Symlinks are followed on both sides.
func InDir(dir, path string) (string, bool) {
	if dir == "" || path == "" {
		return "", false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	root, ok := realPath(dir)
	if !ok {
		return "", false
	}
	target, ok := realPath(path)
	if !ok {
		return "", false
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

// realPath returns the absolute, symlink-free form of p. For a path that
// does not exist yet only its parent directory is resolved.
func realPath(p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		return r, true
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return abs, true
	}
	return filepath.Join(parent, filepath.Base(abs)), true
}
