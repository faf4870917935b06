// Package storage holds the blob store boundary and the file-layout
// schemas. The core writes media through a Backend; the local backend
// prefers hardlinks out of the download cache.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrBackendCannotMove is returned when a backend is asked for a move-style
// publish it does not support.
var ErrBackendCannotMove = errors.New("storage backend does not support move")

// Backend is the blob store interface
type Backend interface {
	// Save streams bytes to the relative path, creating directories
	Save(path string, r io.Reader) (int64, error)
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
	Exists(path string) bool
	Size(path string) (int64, error)
}

// Mover is implemented by backends that can adopt a local file in place
// (hardlink or rename) instead of streaming bytes.
type Mover interface {
	// Link makes the file at src appear at the relative dst path
	Link(src, dst string) error
}

// LocalBackend stores blobs under a root directory on the local filesystem
type LocalBackend struct {
	root     string
	hardlink bool
}

// NewLocalBackend creates a local blob store rooted at dir
func NewLocalBackend(dir string, hardlink bool) *LocalBackend {
	return &LocalBackend{root: dir, hardlink: hardlink}
}

func (b *LocalBackend) abs(path string) string {
	return filepath.Join(b.root, filepath.FromSlash(path))
}

// FullPath resolves a relative blob path to its on-disk location
func (b *LocalBackend) FullPath(path string) string {
	return b.abs(path)
}

// Save implements Backend
func (b *LocalBackend) Save(path string, r io.Reader) (int64, error) {
	full := b.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return 0, fmt.Errorf("failed to create blob directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return 0, fmt.Errorf("failed to create blob: %w", err)
	}
	defer f.Close()
	n, err := io.Copy(f, r)
	if err != nil {
		return n, fmt.Errorf("failed to write blob: %w", err)
	}
	return n, nil
}

// Open implements Backend
func (b *LocalBackend) Open(path string) (io.ReadCloser, error) {
	return os.Open(b.abs(path))
}

// Delete implements Backend
func (b *LocalBackend) Delete(path string) error {
	err := os.Remove(b.abs(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Exists implements Backend
func (b *LocalBackend) Exists(path string) bool {
	_, err := os.Stat(b.abs(path))
	return err == nil
}

// Size implements Backend
func (b *LocalBackend) Size(path string) (int64, error) {
	info, err := os.Stat(b.abs(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Link implements Mover. An existing destination is unlinked and the link
// retried once.
func (b *LocalBackend) Link(src, dst string) error {
	if !b.hardlink {
		return ErrBackendCannotMove
	}
	full := b.abs(dst)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	err := os.Link(src, full)
	if errors.Is(err, os.ErrExist) {
		if rerr := os.Remove(full); rerr != nil {
			return fmt.Errorf("failed to unlink existing blob: %w", rerr)
		}
		err = os.Link(src, full)
	}
	if err != nil {
		return fmt.Errorf("failed to hardlink blob: %w", err)
	}
	return nil
}

// Publish places the cache file at the relative storage path, preferring a
// hardlink when the backend is local, and returns the stored size.
func Publish(backend Backend, cachePath, storagePath string) (int64, error) {
	if mover, ok := backend.(Mover); ok {
		if err := mover.Link(cachePath, storagePath); err == nil {
			return backend.Size(storagePath)
		} else if !errors.Is(err, ErrBackendCannotMove) {
			return 0, err
		}
	}

	f, err := os.Open(cachePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return backend.Save(storagePath, f)
}
