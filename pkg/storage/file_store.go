package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements ObjectStore on the local filesystem, for development
// and single-node deployments.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Put writes the blob to a temporary file and renames it into place, so a
// replaced object is never observable half-written.
func (f *FileStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target := f.resolve(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

// Open returns a reader for the file along with its size.
func (f *FileStore) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	file, err := os.Open(f.resolve(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("stat file: %w", err)
	}
	return file, info.Size(), nil
}

// Stat returns the file size.
func (f *FileStore) Stat(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(f.resolve(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat file: %w", err)
	}
	return info.Size(), nil
}

// Delete removes a file.
func (f *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// ListDir lists immediate entries under the prefix. A missing directory is
// reported as empty.
func (f *FileStore) ListDir(_ context.Context, prefix string) ([]string, []string, error) {
	entries, err := os.ReadDir(f.resolve(prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read dir: %w", err)
	}
	var dirs, files []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		} else {
			files = append(files, entry.Name())
		}
	}
	return dirs, files, nil
}

// RemoveDir removes the directory and anything left in it.
func (f *FileStore) RemoveDir(_ context.Context, prefix string) error {
	if err := os.RemoveAll(f.resolve(prefix)); err != nil {
		return fmt.Errorf("remove dir: %w", err)
	}
	return nil
}

func (f *FileStore) resolve(key string) string {
	return filepath.Join(f.basePath, filepath.FromSlash(key))
}
