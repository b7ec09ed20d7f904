// Package localstore keeps the latest snapshot of each bucket in a file under
// the app's private directory.
package localstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	backupsDir   = "Backups"
	snapshotFile = "snapshot.json"
)

var ErrNotFound = errors.New("local snapshot not found")

type Store struct {
	root string
}

// New returns a store rooted at root; snapshots live in
// <root>/Backups/<bucket>/snapshot.json.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Path(bucket string) string {
	return filepath.Join(s.root, backupsDir, bucket, snapshotFile)
}

// Write replaces the bucket's snapshot atomically: the payload goes to a
// temporary file in the same directory which is then renamed over the old one.
func (s *Store) Write(bucket string, data []byte) error {
	path := s.Path(bucket)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, snapshotFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (s *Store) Read(bucket string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(bucket))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}
