package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
)

// LocalStore keeps uploaded files under a directory on local disk. Used for single-node
// deployments and tests.
type LocalStore struct {
	root     string
	maxBytes int64
}

var _ BlobStore = (*LocalStore)(nil)

// NewLocalStore creates a store rooted at dir, creating the directory if needed.
func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStore{root: dir, maxBytes: maxBytes}, nil
}

// path maps a key onto the root; keys cannot escape it.
func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(filepath.Clean("/"+key)))
}

// Get reads an object from disk.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object %q: %w", key, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	defer f.Close()

	data, err := readLimited(f, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return data, nil
}

// Put writes an object to disk, replacing any existing one.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("store object %q: %w", key, err)
	}
	return nil
}
