// Package file provides a filesystem-backed blob store for local and
// development use.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vadimbarashkov/affiliate-publisher/internal/storage"
)

// Store keeps each blob as one file under a base directory.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	const op = "storage.file.New"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create store directory: %w", op, err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "storage.file.Store.Get"

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: failed to read blob: %w", op, err)
	}

	return data, nil
}

// Put writes to a temporary file and renames it so readers never observe a
// partially written blob.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	const op = "storage.file.Store.Put"

	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("%s: failed to create temp file: %w", op, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%s: failed to write blob: %w", op, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%s: failed to close temp file: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%s: failed to replace blob: %w", op, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	const op = "storage.file.Store.Delete"

	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return fmt.Errorf("%s: failed to delete blob: %w", op, err)
	}

	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
