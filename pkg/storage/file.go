package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFilePath is the artifact location used when none is configured.
const DefaultFilePath = "student_performance_model.json"

// FileStore keeps the artifact in a single JSON file. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// crash mid-write leaves the previous version intact.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. The parent directory is created on
// first Put.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFilePath
	}
	return &FileStore{path: path}
}

// Path returns the artifact file location.
func (s *FileStore) Path() string {
	return s.path
}

// Put replaces the artifact file.
func (s *FileStore) Put(ctx context.Context, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(a)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Get reads the artifact file. A missing file is reported as not found.
func (s *FileStore) Get(ctx context.Context) (Artifact, bool, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, false, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, &ModelUnavailableError{Location: s.path, Err: err}
	}

	a, err := decode(s.path, data)
	if err != nil {
		return Artifact{}, false, err
	}
	return a, true, nil
}
