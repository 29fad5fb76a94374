// Package security guards file operations that take caller-supplied paths.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a path escapes every allowed
// directory.
var ErrOutsideDirectory = errors.New("path outside allowed directories")

// WithinDirectory checks that path resolves to a location inside dir.
// Neither needs to exist; symlinks in the existing part of either path are
// resolved first so a link cannot be used to escape dir.
func WithinDirectory(path, dir string) error {
	canonicalPath, err := canonical(path)
	if err != nil {
		return err
	}
	canonicalDir, err := canonical(dir)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideDirectory, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s escapes %s", ErrOutsideDirectory, path, dir)
	}
	return nil
}

// WithinAnyDirectory checks that path lies inside at least one of dirs.
// Empty entries are ignored.
func WithinAnyDirectory(path string, dirs ...string) error {
	checked := 0
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		checked++
		if err := WithinDirectory(path, dir); err == nil {
			return nil
		}
	}
	if checked == 0 {
		return fmt.Errorf("%w: no directories allowed", ErrOutsideDirectory)
	}
	return fmt.Errorf("%w: %s not within %v", ErrOutsideDirectory, path, dirs)
}

// canonical returns the absolute form of path with symlinks resolved in
// its longest existing prefix.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	existing, rest := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}
