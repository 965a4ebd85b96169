// Package pathutil provides utilities for safe path handling.
package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath = errors.New("path is empty")
	ErrNullBytes = errors.New("path contains null bytes")
)

// ValidatePath cleans path and resolves symlinks when it exists. Paths that
// do not exist yet are returned cleaned so outputs can be created.
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "\x00") {
		return "", ErrNullBytes
	}
	realPath, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return cleaned, nil
	}
	return realPath, nil
}

// Under returns path relative to root when path lies strictly below root.
// Both are compared after cleaning; root itself is not below root.
func Under(root, path string) (string, bool) {
	if root == "" || path == "" {
		return "", false
	}
	prefix := filepath.Clean(root)
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, prefix) {
		return "", false
	}
	return strings.TrimPrefix(clean, prefix), true
}

// Abs joins relative paths to base. Absolute paths are only cleaned.
func Abs(base, path string) string {
	if filepath.IsAbs(path) || base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
