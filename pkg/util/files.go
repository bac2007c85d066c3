package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a regular file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FileSize returns the size of path in bytes, or 0 if it cannot be read.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// CleanupPaths removes files or directory trees, ignoring errors
func CleanupPaths(paths ...string) {
	for _, path := range paths {
		_ = os.RemoveAll(path)
	}
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers see either the old content or the new one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// ReplacePath moves src onto dst. A directory already at dst is first moved
// aside into trashDir and removed after the swap; files are replaced by a
// single rename.
func ReplacePath(src, dst, trashDir string) error {
	info, err := os.Lstat(dst)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return os.Rename(src, dst)
	case err != nil:
		return err
	case !info.IsDir():
		return os.Rename(src, dst)
	}

	if err := EnsureDir(trashDir); err != nil {
		return err
	}
	aside := filepath.Join(trashDir, filepath.Base(dst))
	_ = os.RemoveAll(aside)
	if err := os.Rename(dst, aside); err != nil {
		return fmt.Errorf("move %s aside: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		// put the old tree back so the published set stays complete
		_ = os.Rename(aside, dst)
		return err
	}
	return os.RemoveAll(aside)
}
