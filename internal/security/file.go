// Package security holds the small file and comparison helpers shared by the
// storage and vault layers.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	PermSecretFile os.FileMode = 0600
	PermSecretDir  os.FileMode = 0700
)

var (
	ErrInvalidPath         = errors.New("security: invalid path")
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrAtomicWriteFailed   = errors.New("security: atomic write failed")
	ErrFileTooLarge        = errors.New("security: file exceeds maximum size")
)

// CleanPath rejects empty paths and paths with NUL bytes, and returns the
// cleaned form.
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: contains NUL", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

// WriteSecretFile replaces path with data, mode 0600 (os.CreateTemp's
// default). The data is written and synced to a temporary file in the same
// directory first, so readers see either the old or the new content.
func WriteSecretFile(path string, data []byte) (err error) {
	path, err = CleanPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, PermSecretDir); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	return nil
}

// ReadSecretFile reads path after checking that it is not readable by group
// or others. A maxSize of zero disables the size check.
func ReadSecretFile(path string, maxSize int64) ([]byte, error) {
	cleanPath, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, err
	}

	if runtime.GOOS != "windows" {
		if mode := info.Mode().Perm(); mode&0077 != 0 {
			return nil, fmt.Errorf("%w: file %s has mode %04o, expected %04o",
				ErrInsecurePermissions, cleanPath, mode, PermSecretFile)
		}
	}

	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, info.Size(), maxSize)
	}

	return os.ReadFile(cleanPath)
}

// LockFile blocks until it holds an exclusive advisory lock on f. The lock
// only excludes other LockFile callers, including other processes.
func LockFile(f *os.File) error {
	if err := lockFile(f); err != nil {
		return fmt.Errorf("lock %s: %w", f.Name(), err)
	}
	return nil
}

// UnlockFile releases the lock taken by LockFile.
func UnlockFile(f *os.File) error {
	return unlockFile(f)
}
