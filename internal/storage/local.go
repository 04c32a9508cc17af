package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore writes pipeline artifacts under a data directory.
// All writes are atomic: temp file + rename, so a stage artifact is
// either fully present or absent, never half-written.
type LocalStore struct {
	dataDir string
}

// NewLocalStore creates a local filesystem artifact store.
func NewLocalStore(dataDir string) *LocalStore {
	return &LocalStore{dataDir: dataDir}
}

// Dir returns the data directory path.
func (s *LocalStore) Dir() string { return s.dataDir }

// Path resolves a key to an absolute path under the data directory.
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(key))
}

// Save stores artifact data. key is a slash-separated path relative to the
// data directory, e.g. {asin}/chunks/{chunkID}/extracted.txt.
func (s *LocalStore) Save(key string, data []byte) error {
	path := s.Path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Load reads an artifact's full contents.
func (s *LocalStore) Load(key string) ([]byte, error) {
	return os.ReadFile(s.Path(key))
}

// Open returns a reader for an artifact.
func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	return os.Open(s.Path(key))
}

// Exists checks whether an artifact is present on disk. Presence of the
// file is what marks a pipeline stage as already done.
func (s *LocalStore) Exists(key string) bool {
	info, err := os.Stat(s.Path(key))
	return err == nil && !info.IsDir()
}

// Remove deletes a single artifact. Missing files are not an error.
func (s *LocalStore) Remove(key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveDir deletes an artifact directory and everything under it.
func (s *LocalStore) RemoveDir(key string) error {
	return os.RemoveAll(s.Path(key))
}
